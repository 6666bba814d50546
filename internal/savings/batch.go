package savings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/platform/cache"
	"github.com/coopledger/coopledger/internal/shared"
)

var twelveHundred = decimal.NewFromInt(1200)

// MonthlyInterest is balance x annual rate / 100 / 12, rounded to cents.
func MonthlyInterest(balance, annualRate decimal.Decimal) decimal.Decimal {
	return shared.RoundMoney(balance.Mul(annualRate).Div(twelveHundred))
}

func periodReference(prefix string, asOf time.Time) string {
	return prefix + "-" + asOf.Format("200601")
}

// AccrueInterest liquidates the month's interest of every active account as
// an INTEREST movement. An account is credited at most once per month.
func (s *Service) AccrueInterest(ctx context.Context, asOf time.Time) (BatchResult, error) {
	ref := periodReference("INT", asOf)
	return s.runMonthly(ctx, asOf, shared.SavingsInterestLockKey(asOf), "savings interest liquidated",
		func(ctx context.Context, tx TxRepository, acct *Account) (decimal.Decimal, bool, error) {
			interest := MonthlyInterest(acct.AvailableBalance, acct.AnnualRate)
			if !interest.IsPositive() {
				return decimal.Zero, false, nil
			}
			done, err := tx.HasMovement(ctx, acct.ID, MovementInterest, ref)
			if err != nil || done {
				return decimal.Zero, false, err
			}
			_, err = s.post(ctx, tx, acct, MovementInterest, interest, "Liquidacion intereses "+asOf.Format("2006-01"), ref, 0)
			return interest, err == nil, err
		})
}

// ChargeManagementFee debits each active account's monthly fee. Accounts
// without a fee or without funds to cover it are skipped.
func (s *Service) ChargeManagementFee(ctx context.Context, asOf time.Time) (BatchResult, error) {
	ref := periodReference("CM", asOf)
	return s.runMonthly(ctx, asOf, shared.SavingsFeeLockKey(asOf), "savings management fee charged",
		func(ctx context.Context, tx TxRepository, acct *Account) (decimal.Decimal, bool, error) {
			fee := shared.RoundMoney(acct.ManagementFee)
			if !fee.IsPositive() || fee.GreaterThan(acct.AvailableBalance) {
				return decimal.Zero, false, nil
			}
			done, err := tx.HasMovement(ctx, acct.ID, MovementManagementFee, ref)
			if err != nil || done {
				return decimal.Zero, false, err
			}
			_, err = s.post(ctx, tx, acct, MovementManagementFee, fee, "Cuota de manejo "+asOf.Format("2006-01"), ref, 0)
			return fee, err == nil, err
		})
}

type monthlyStep func(ctx context.Context, tx TxRepository, acct *Account) (decimal.Decimal, bool, error)

func (s *Service) runMonthly(ctx context.Context, asOf time.Time, lockKey, message string, step monthlyStep) (BatchResult, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = dateOnly(asOf)
	result := BatchResult{AsOf: asOf}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, lockKey)
		if errors.Is(err, cache.ErrLockHeld) {
			return result, ErrBatchInProgress
		}
		if err != nil {
			return result, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release savings batch lock", slog.String("key", lockKey), slog.Any("error", err))
			}
		}()
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = BatchResult{AsOf: asOf}
		ids, err := tx.ActiveAccountIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			acct, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			amount, applied, err := step(ctx, tx, &acct)
			if err != nil {
				return err
			}
			if !applied {
				result.Skipped++
				continue
			}
			if err := tx.UpdateAccount(ctx, acct); err != nil {
				return err
			}
			result.Accounts++
			result.Total = result.Total.Add(amount)
		}
		return nil
	})
	if err != nil {
		return BatchResult{AsOf: asOf}, err
	}
	s.logger.Info(message,
		slog.String("period", asOf.Format("2006-01")),
		slog.Int("accounts", result.Accounts),
		slog.Int("skipped", result.Skipped),
		slog.String("total", result.Total.StringFixed(2)))
	return result, nil
}
