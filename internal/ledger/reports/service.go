// Package reports builds the cooperative's financial statements from ledger totals.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/coopledger/coopledger/internal/ledger/balances"
	"github.com/coopledger/coopledger/internal/shared"
)

// TotalsSource supplies per-account sums of non-voided movements.
type TotalsSource interface {
	AccountTotals(ctx context.Context, from, to *time.Time) ([]balances.AccountTotal, error)
}

// ErrInvalidRange is returned when a period ends before it starts.
var ErrInvalidRange = shared.NewError(shared.ErrValidation, "reports: from must not be after to")

// Service shares concurrent identical builds through a singleflight group.
type Service struct {
	source TotalsSource
	logger *slog.Logger
	group  singleflight.Group
}

func NewService(source TotalsSource, logger *slog.Logger) *Service {
	return &Service{source: source, logger: logger}
}

// BalanceSheet reports positions from the first movement up to asOf.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	key := "bs:" + asOf.Format("20060102")
	v, err := s.build(ctx, key, nil, &asOf, func(totals []balances.AccountTotal) any {
		return BuildBalanceSheet(totals)
	})
	if err != nil {
		return BalanceSheet{}, err
	}
	report := v.(BalanceSheet)
	if !report.Balanced && s.logger != nil {
		s.logger.Warn("balance sheet out of balance", slog.String("as_of", asOf.Format(time.DateOnly)), slog.String("difference", report.Difference.String()))
	}
	return report, nil
}

// IncomeStatement reports income and expense for the inclusive period.
func (s *Service) IncomeStatement(ctx context.Context, from, to time.Time) (IncomeStatement, error) {
	if from.After(to) {
		return IncomeStatement{}, ErrInvalidRange
	}
	key := "pl:" + from.Format("20060102") + ":" + to.Format("20060102")
	v, err := s.build(ctx, key, &from, &to, func(totals []balances.AccountTotal) any {
		return BuildIncomeStatement(totals)
	})
	if err != nil {
		return IncomeStatement{}, err
	}
	return v.(IncomeStatement), nil
}

// TrialBalance lists debit and credit sums per account for the inclusive period.
func (s *Service) TrialBalance(ctx context.Context, from, to time.Time) (TrialBalance, error) {
	if from.After(to) {
		return TrialBalance{}, ErrInvalidRange
	}
	key := "tb:" + from.Format("20060102") + ":" + to.Format("20060102")
	v, err := s.build(ctx, key, &from, &to, func(totals []balances.AccountTotal) any {
		return BuildTrialBalance(totals)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return v.(TrialBalance), nil
}

func (s *Service) build(ctx context.Context, key string, from, to *time.Time, render func([]balances.AccountTotal) any) (any, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		totals, err := s.source.AccountTotals(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("reports: load totals: %w", err)
		}
		return render(totals), nil
	})
	return v, err
}
