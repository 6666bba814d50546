package balances

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
)

// Query selects the movements to aggregate. Nil dates are open bounds and
// both bounds are inclusive.
type Query struct {
	AccountID      int64
	ThirdPartyType string
	ThirdPartyID   *int64
	From           *time.Time
	To             *time.Time
}

// Balance is the aggregate of non-voided movements of one account.
type Balance struct {
	AccountID      int64               `json:"account_id"`
	Code           string              `json:"code"`
	NormalSide     accounts.NormalSide `json:"normal_side"`
	ThirdPartyType string              `json:"third_party_type,omitempty"`
	ThirdPartyID   *int64              `json:"third_party_id,omitempty"`
	From           *time.Time          `json:"from,omitempty"`
	To             *time.Time          `json:"to,omitempty"`
	TotalDebit     decimal.Decimal     `json:"total_debit"`
	TotalCredit    decimal.Decimal     `json:"total_credit"`
	Net            decimal.Decimal     `json:"net"`
}

// AccountTotal carries per-account sums with the metadata reports group by.
type AccountTotal struct {
	AccountID  int64                `json:"account_id"`
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Type       accounts.AccountType `json:"type"`
	NormalSide accounts.NormalSide  `json:"normal_side"`
	Level      int                  `json:"level"`
	Debit      decimal.Decimal      `json:"debit"`
	Credit     decimal.Decimal      `json:"credit"`
}

// Net is the account's balance on its normal side.
func (t AccountTotal) Net() decimal.Decimal {
	return Net(t.NormalSide, t.Debit, t.Credit)
}

// Net returns debit-credit for debit-normal accounts and credit-debit otherwise.
func Net(side accounts.NormalSide, debit, credit decimal.Decimal) decimal.Decimal {
	if side == accounts.NormalSideCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
