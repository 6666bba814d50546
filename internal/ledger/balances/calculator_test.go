package balances

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
)

type line struct {
	accountID    int64
	date         time.Time
	debit        decimal.Decimal
	credit       decimal.Decimal
	voided       bool
	thirdPartyID int64
}

type memoryRepo struct {
	lines []line
	calls int
}

func (m *memoryRepo) Sums(_ context.Context, q Query) (decimal.Decimal, decimal.Decimal, error) {
	m.calls++
	var debit, credit decimal.Decimal
	for _, l := range m.lines {
		if l.accountID != q.AccountID || l.voided {
			continue
		}
		if q.From != nil && l.date.Before(*q.From) {
			continue
		}
		if q.To != nil && l.date.After(*q.To) {
			continue
		}
		if q.ThirdPartyID != nil && l.thirdPartyID != *q.ThirdPartyID {
			continue
		}
		debit = debit.Add(l.debit)
		credit = credit.Add(l.credit)
	}
	return debit, credit, nil
}

func (m *memoryRepo) AccountTotals(context.Context, *time.Time, *time.Time) ([]AccountTotal, error) {
	m.calls++
	return nil, nil
}

type accountMap map[int64]accounts.Account

func (a accountMap) Get(_ context.Context, id int64) (accounts.Account, error) {
	acc, ok := a[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return acc, nil
}

var chart = accountMap{
	1: {ID: 1, Code: "1110", Type: accounts.AccountTypeAsset, NormalSide: accounts.NormalSideDebit},
	2: {ID: 2, Code: "3105", Type: accounts.AccountTypeEquity, NormalSide: accounts.NormalSideCredit},
	3: {ID: 3, Code: "5105", Type: accounts.AccountTypeExpense, NormalSide: accounts.NormalSideDebit},
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(m time.Month, dd int) time.Time { return time.Date(2024, m, dd, 0, 0, 0, 0, time.UTC) }

func newTestCalculator(t *testing.T, repo Repository) (*Calculator, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewCalculator(repo, chart, cache), cache
}

func TestBalanceUsesNormalSide(t *testing.T) {
	repo := &memoryRepo{lines: []line{
		{accountID: 1, date: day(1, 10), debit: d("100000")},
		{accountID: 2, date: day(1, 10), credit: d("100000")},
		{accountID: 1, date: day(2, 1), credit: d("30000")},
		{accountID: 2, date: day(2, 1), debit: d("30000")},
	}}
	calc, _ := newTestCalculator(t, repo)
	ctx := context.Background()

	bank, err := calc.Balance(ctx, 1, nil, nil)
	require.NoError(t, err)
	assert.True(t, bank.Net.Equal(d("70000")))
	assert.True(t, bank.TotalDebit.Equal(d("100000")))

	equity, err := calc.Balance(ctx, 2, nil, nil)
	require.NoError(t, err)
	assert.True(t, equity.Net.Equal(d("70000")))

	from, to := day(1, 1), day(1, 31)
	january, err := calc.Balance(ctx, 1, &from, &to)
	require.NoError(t, err)
	assert.True(t, january.Net.Equal(d("100000")))
}

func TestBalanceWithoutMovementsIsZero(t *testing.T) {
	calc, _ := newTestCalculator(t, &memoryRepo{})
	balance, err := calc.Balance(context.Background(), 3, nil, nil)
	require.NoError(t, err)
	assert.True(t, balance.Net.IsZero())
	assert.True(t, balance.TotalDebit.IsZero())
}

func TestBalanceExcludesVoidedEntries(t *testing.T) {
	repo := &memoryRepo{lines: []line{
		{accountID: 1, date: day(3, 1), debit: d("100000"), voided: true},
		{accountID: 2, date: day(3, 1), credit: d("100000"), voided: true},
	}}
	calc, _ := newTestCalculator(t, repo)

	balance, err := calc.Balance(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	assert.True(t, balance.TotalDebit.IsZero())
	assert.True(t, balance.Net.IsZero())
}

func TestBalanceCachedUntilInvalidated(t *testing.T) {
	repo := &memoryRepo{lines: []line{{accountID: 1, date: day(1, 1), debit: d("10")}}}
	calc, cache := newTestCalculator(t, repo)
	ctx := context.Background()

	_, err := calc.Balance(ctx, 1, nil, nil)
	require.NoError(t, err)
	_, err = calc.Balance(ctx, 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	repo.lines = append(repo.lines, line{accountID: 1, date: day(1, 2), debit: d("5")})
	require.NoError(t, cache.Invalidate(ctx))

	balance, err := calc.Balance(ctx, 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.True(t, balance.Net.Equal(d("15")))
}

func TestThirdPartyBalance(t *testing.T) {
	repo := &memoryRepo{lines: []line{
		{accountID: 2, date: day(1, 1), credit: d("50000"), thirdPartyID: 7},
		{accountID: 2, date: day(1, 1), credit: d("20000"), thirdPartyID: 8},
	}}
	calc, _ := newTestCalculator(t, repo)

	balance, err := calc.ThirdPartyBalance(context.Background(), 2, "MEMBER", 7, nil, nil)
	require.NoError(t, err)
	assert.True(t, balance.Net.Equal(d("50000")))

	_, err = calc.ThirdPartyBalance(context.Background(), 2, "", 7, nil, nil)
	assert.Error(t, err)
}

func TestCalculatorWithoutRedis(t *testing.T) {
	repo := &memoryRepo{lines: []line{{accountID: 1, date: day(1, 1), debit: d("10")}}}
	calc := NewCalculator(repo, chart, NewCache(nil, time.Minute))

	balance, err := calc.Balance(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	assert.True(t, balance.Net.Equal(d("10")))

	_, err = calc.Balance(context.Background(), 99, nil, nil)
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}
