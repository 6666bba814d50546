package credit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/platform/cache"
	"github.com/coopledger/coopledger/internal/shared"
)

// AccrueMora marks installments due before asOf as delinquent and recomputes
// their penalty as value x daily rate x days late. Penalties are derived from
// days late on every run, so repeating a date yields the same result.
func (s *Service) AccrueMora(ctx context.Context, asOf time.Time) (MoraResult, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = dateOnly(asOf)
	result := MoraResult{AsOf: asOf}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.MoraAccrualLockKey(asOf))
		if errors.Is(err, cache.ErrLockHeld) {
			return result, ErrMoraInProgress
		}
		if err != nil {
			return result, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release mora lock", slog.Any("error", err))
			}
		}()
	}

	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.OverdueLoanIDs(ctx, asOf)
		return err
	})
	if err != nil {
		return result, err
	}
	for _, id := range ids {
		installments, penalty, err := s.accrueLoanWithRetry(ctx, id, asOf)
		if err != nil {
			return result, err
		}
		if installments == 0 {
			continue
		}
		result.Loans++
		result.Installments += installments
		result.TotalPenalty = result.TotalPenalty.Add(penalty)
	}
	s.logger.Info("mora accrued",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("loans", result.Loans),
		slog.Int("installments", result.Installments),
		slog.String("penalty", result.TotalPenalty.StringFixed(2)))
	return result, nil
}

const moraLoanAttempts = 3

// accrueLoanWithRetry repeats one loan's accrual when a concurrent payment
// wins the serialization race. Loans already committed stay committed.
func (s *Service) accrueLoanWithRetry(ctx context.Context, id int64, asOf time.Time) (int, decimal.Decimal, error) {
	var err error
	for attempt := 1; attempt <= moraLoanAttempts; attempt++ {
		var (
			installments int
			penalty      decimal.Decimal
		)
		installments, penalty, err = s.accrueLoan(ctx, id, asOf)
		if err == nil || !shared.IsRetryable(err) {
			return installments, penalty, err
		}
		s.logger.Warn("mora accrual retry", slog.Int64("loan_id", id), slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return 0, decimal.Zero, err
}

// accrueLoan recomputes one loan's penalties in its own transaction.
func (s *Service) accrueLoan(ctx context.Context, id int64, asOf time.Time) (int, decimal.Decimal, error) {
	var (
		installments int
		penalty      decimal.Decimal
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loan, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !loan.State.AcceptsPayments() {
			return nil
		}
		schedule, err := tx.InstallmentsForUpdate(ctx, id)
		if err != nil {
			return err
		}
		accrued, changed := AccruePenalties(schedule, asOf, s.moraRate)
		if len(changed) == 0 {
			return nil
		}
		for _, inst := range changed {
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}
		loan.OutstandingPenalty = OutstandingPenalty(accrued)
		loan.DaysLate = MaxDaysLate(accrued)
		loan.State = StateDelinquent
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		installments, penalty = len(changed), loan.OutstandingPenalty
		return nil
	})
	if err != nil {
		return 0, decimal.Zero, err
	}
	return installments, penalty, nil
}

// AccruePenalties returns the full schedule with overdue open installments
// marked delinquent, plus the subset that was overdue.
func AccruePenalties(schedule []Installment, asOf time.Time, dailyRate decimal.Decimal) (all, overdue []Installment) {
	all = make([]Installment, len(schedule))
	for idx, inst := range schedule {
		if inst.State.Open() && inst.DueDate.Before(asOf) {
			days := int(asOf.Sub(dateOnly(inst.DueDate)).Hours() / 24)
			if days > 0 {
				inst.DaysLate = days
				inst.State = InstallmentDelinquent
				inst.Penalty = shared.RoundMoney(inst.Value.Mul(dailyRate).Mul(decimal.NewFromInt(int64(days))))
				overdue = append(overdue, inst)
			}
		}
		all[idx] = inst
	}
	return all, overdue
}

// OutstandingPenalty sums the unpaid penalty of every installment.
func OutstandingPenalty(schedule []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		if rem := inst.Penalty.Sub(inst.PenaltyPaid); rem.IsPositive() {
			total = total.Add(rem)
		}
	}
	return total
}

// MaxDaysLate is the largest days late among delinquent installments.
func MaxDaysLate(schedule []Installment) int {
	longest := 0
	for _, inst := range schedule {
		if inst.State == InstallmentDelinquent && inst.DaysLate > longest {
			longest = inst.DaysLate
		}
	}
	return longest
}
