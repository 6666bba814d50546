package reports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/balances"
	"github.com/coopledger/coopledger/internal/shared"
	_ "github.com/coopledger/coopledger/testing"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func total(code, name string, typ accounts.AccountType, debit, credit string) balances.AccountTotal {
	return balances.AccountTotal{
		Code:       code,
		Name:       name,
		Type:       typ,
		NormalSide: typ.DefaultNormalSide(),
		Debit:      d(debit),
		Credit:     d(credit),
	}
}

// A small cooperative year: contributions, a disbursed loan, interest earned, expenses paid.
var sample = []balances.AccountTotal{
	total("1110", "Bancos", accounts.AccountTypeAsset, "1500000", "1030000"),
	total("1305", "Cartera de creditos", accounts.AccountTypeAsset, "1000000", "0"),
	total("2105", "Depositos de ahorro", accounts.AccountTypeLiability, "0", "400000"),
	total("3105", "Aportes sociales", accounts.AccountTypeEquity, "0", "1000000"),
	total("4150", "Intereses de cartera", accounts.AccountTypeIncome, "0", "100000"),
	total("5105", "Gastos de personal", accounts.AccountTypeExpense, "30000", "0"),
}

func TestBuildTrialBalance(t *testing.T) {
	tb := BuildTrialBalance(sample)
	require.Len(t, tb.Groups, 6)
	assert.Equal(t, "11", tb.Groups[0].Key)
	assert.True(t, tb.TotalDebit.Equal(d("2530000")))
	assert.True(t, tb.TotalCredit.Equal(d("2530000")))
	assert.True(t, tb.Balanced)
	assert.True(t, tb.Groups[0].Accounts[0].Balance.Equal(d("470000")))
}

func TestBuildIncomeStatement(t *testing.T) {
	pl := BuildIncomeStatement(sample)
	assert.True(t, pl.Income.Total.Equal(d("100000")))
	assert.True(t, pl.Expense.Total.Equal(d("30000")))
	assert.True(t, pl.NetIncome.Equal(d("70000")))
	assert.True(t, pl.MarginPct.Equal(d("70")))
}

func TestBuildIncomeStatementWithoutIncome(t *testing.T) {
	pl := BuildIncomeStatement([]balances.AccountTotal{total("5105", "Gastos", accounts.AccountTypeExpense, "10", "0")})
	assert.True(t, pl.MarginPct.IsZero())
	assert.True(t, pl.NetIncome.Equal(d("-10")))
}

func TestBuildBalanceSheet(t *testing.T) {
	bs := BuildBalanceSheet(sample)
	assert.True(t, bs.Assets.Total.Equal(d("1470000")))
	assert.True(t, bs.Liabilities.Total.Equal(d("400000")))
	assert.True(t, bs.Equity.Total.Equal(d("1000000")))
	assert.True(t, bs.CurrentResult.Equal(d("70000")))
	assert.True(t, bs.TotalLiabilitiesAndEquity.Equal(d("1470000")))
	assert.True(t, bs.Balanced)
	assert.Equal(t, "1110", bs.Assets.Accounts[0].Code)
}

func TestBuildBalanceSheetDetectsDifference(t *testing.T) {
	skewed := append([]balances.AccountTotal{}, sample...)
	skewed[0] = total("1110", "Bancos", accounts.AccountTypeAsset, "1500000.02", "1030000")
	bs := BuildBalanceSheet(skewed)
	assert.False(t, bs.Balanced)
	assert.True(t, bs.Difference.Equal(d("0.02")))
}

type countingSource struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (s *countingSource) AccountTotals(context.Context, *time.Time, *time.Time) ([]balances.AccountTotal, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return sample, s.err
}

func TestServiceSharesConcurrentBuilds(t *testing.T) {
	source := &countingSource{gate: make(chan struct{})}
	svc := NewService(source, nil)
	asOf := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make([]BalanceSheet, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bs, err := svc.BalanceSheet(context.Background(), asOf)
			assert.NoError(t, err)
			results[i] = bs
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	assert.LessOrEqual(t, source.calls.Load(), int32(5))
	for _, bs := range results {
		assert.True(t, bs.Balanced)
	}
}

func TestServiceRejectsInvertedRange(t *testing.T) {
	svc := NewService(&countingSource{}, nil)
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.IncomeStatement(context.Background(), from, from.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.TrialBalance(context.Background(), from, from.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestServiceWrapsSourceErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&countingSource{err: boom}, nil)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.TrialBalance(context.Background(), from, from.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, boom)
}
