// Package balances derives account balances from posted, non-voided journal
// movements. Balances are never stored on the account itself.
package balances

import (
	"context"
	"strconv"
	"time"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/shared"
)

// AccountLookup resolves the normal side of an account.
type AccountLookup interface {
	Get(ctx context.Context, id int64) (accounts.Account, error)
}

// Calculator computes balances through the versioned cache.
type Calculator struct {
	repo     Repository
	accounts AccountLookup
	cache    *Cache
}

func NewCalculator(repo Repository, accounts AccountLookup, cache *Cache) *Calculator {
	return &Calculator{repo: repo, accounts: accounts, cache: cache}
}

// Balance sums the account's movements within the inclusive date range.
// An account without movements has a zero balance.
func (c *Calculator) Balance(ctx context.Context, accountID int64, from, to *time.Time) (Balance, error) {
	return c.compute(ctx, Query{AccountID: accountID, From: from, To: to})
}

// ThirdPartyBalance restricts the balance to movements tagged with one third party.
func (c *Calculator) ThirdPartyBalance(ctx context.Context, accountID int64, thirdPartyType string, thirdPartyID int64, from, to *time.Time) (Balance, error) {
	if thirdPartyType == "" || thirdPartyID <= 0 {
		return Balance{}, shared.NewError(shared.ErrValidation, "ledger: third party type and id required")
	}
	return c.compute(ctx, Query{AccountID: accountID, ThirdPartyType: thirdPartyType, ThirdPartyID: &thirdPartyID, From: from, To: to})
}

// AccountTotals returns per-account sums for every account with movements.
func (c *Calculator) AccountTotals(ctx context.Context, from, to *time.Time) ([]AccountTotal, error) {
	key, err := c.cache.BuildKey(ctx, "ledger", "totals", dateToken(from), dateToken(to))
	if err != nil {
		return nil, err
	}
	var totals []AccountTotal
	err = c.cache.FetchJSON(ctx, key, &totals, func(ctx context.Context) (any, error) {
		return c.repo.AccountTotals(ctx, from, to)
	})
	return totals, err
}

func (c *Calculator) compute(ctx context.Context, q Query) (Balance, error) {
	account, err := c.accounts.Get(ctx, q.AccountID)
	if err != nil {
		return Balance{}, err
	}
	thirdParty := "-"
	if q.ThirdPartyID != nil {
		thirdParty = q.ThirdPartyType + "/" + strconv.FormatInt(*q.ThirdPartyID, 10)
	}
	key, err := c.cache.BuildKey(ctx, "ledger", "balance", strconv.FormatInt(q.AccountID, 10), thirdParty, dateToken(q.From), dateToken(q.To))
	if err != nil {
		return Balance{}, err
	}
	var balance Balance
	err = c.cache.FetchJSON(ctx, key, &balance, func(ctx context.Context) (any, error) {
		debit, credit, err := c.repo.Sums(ctx, q)
		if err != nil {
			return nil, err
		}
		return Balance{
			AccountID:      account.ID,
			Code:           account.Code,
			NormalSide:     account.NormalSide,
			ThirdPartyType: q.ThirdPartyType,
			ThirdPartyID:   q.ThirdPartyID,
			From:           q.From,
			To:             q.To,
			TotalDebit:     debit,
			TotalCredit:    credit,
			Net:            Net(account.NormalSide, debit, credit),
		}, nil
	})
	return balance, err
}

func dateToken(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format("20060102")
}
