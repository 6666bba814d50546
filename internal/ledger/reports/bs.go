package reports

import (
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/balances"
	"github.com/coopledger/coopledger/internal/shared"
)

// BalanceSheet is the structured statement of financial position at a date.
type BalanceSheet struct {
	Assets      Section `json:"assets"`
	Liabilities Section `json:"liabilities"`
	Equity      Section `json:"equity"`
	// CurrentResult is income minus expense not yet closed into equity.
	CurrentResult             decimal.Decimal `json:"current_result"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
	Difference                decimal.Decimal `json:"difference"`
	Balanced                  bool            `json:"balanced"`
}

// BuildBalanceSheet aggregates balances into assets, liabilities, and equity sections.
func BuildBalanceSheet(totals []balances.AccountTotal) BalanceSheet {
	assets := Section{Label: "Activos"}
	liabilities := Section{Label: "Pasivos"}
	equity := Section{Label: "Patrimonio"}
	result := decimal.Zero

	for _, acc := range totals {
		switch acc.Type {
		case accounts.AccountTypeAsset:
			assets.add(acc)
		case accounts.AccountTypeLiability:
			liabilities.add(acc)
		case accounts.AccountTypeEquity:
			equity.add(acc)
		case accounts.AccountTypeIncome:
			result = result.Add(acc.Net())
		case accounts.AccountTypeExpense:
			result = result.Sub(acc.Net())
		}
	}
	assets.sort()
	liabilities.sort()
	equity.sort()

	right := liabilities.Total.Add(equity.Total).Add(result)
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		CurrentResult:             result,
		TotalLiabilitiesAndEquity: right,
		Difference:                assets.Total.Sub(right),
		Balanced:                  withinTolerance(assets.Total, right),
	}
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(shared.Tolerance)
}
