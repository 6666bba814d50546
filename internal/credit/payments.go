package credit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// IdempotencyModule scopes payment keys in the idempotency store.
const IdempotencyModule = "credit.payment"

// PaymentInput registers a payment against a loan.
type PaymentInput struct {
	LoanID         int64
	Value          decimal.Decimal
	Date           time.Time
	Method         string
	Reference      string
	Notes          string
	IdempotencyKey string
	ActorID        int64
}

// RegisterPayment applies a payment to the loan's open installments in
// sequence order and updates the loan's outstanding balances. Replaying a
// request with an already used idempotency key returns the original payment.
func (s *Service) RegisterPayment(ctx context.Context, in PaymentInput) (Payment, error) {
	in.Value = shared.RoundMoney(in.Value)
	if !in.Value.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	if in.Date.IsZero() {
		in.Date = s.today()
	}
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = "CASH"
	}

	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	reservation := paymentReservation(in.LoanID, in.IdempotencyKey)
	if in.IdempotencyKey != "" && s.idem != nil {
		err := s.idem.CheckAndInsert(ctx, reservation, IdempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return s.replay(ctx, in)
		}
		if err != nil {
			return Payment{}, err
		}
	}

	payment, before, after, err := s.applyPayment(ctx, in)
	if err != nil {
		if in.IdempotencyKey != "" && s.idem != nil {
			if derr := s.idem.Delete(ctx, reservation); derr != nil {
				s.logger.Warn("release payment idempotency key", slog.Any("error", derr))
			}
		}
		return Payment{}, err
	}
	s.record(ctx, in.ActorID, "loan.payment", after.ID, shared.Change(
		map[string]any{"state": before.State, "outstanding_principal": before.OutstandingPrincipal},
		map[string]any{"state": after.State, "outstanding_principal": after.OutstandingPrincipal, "receipt": payment.ReceiptNumber},
	))
	return payment, nil
}

// replay returns the payment a reserved key produced. A reservation without a
// stored payment belongs to a request still in flight.
func (s *Service) replay(ctx context.Context, in PaymentInput) (Payment, error) {
	payment, err := s.repo.PaymentByKey(ctx, in.LoanID, in.IdempotencyKey)
	if errors.Is(err, shared.ErrNotFound) {
		return Payment{}, ErrPaymentInProgress
	}
	return payment, err
}

// paymentReservation scopes a client key to one loan.
func paymentReservation(loanID int64, key string) string {
	return strconv.FormatInt(loanID, 10) + ":" + key
}

func (s *Service) applyPayment(ctx context.Context, in PaymentInput) (Payment, Loan, Loan, error) {
	var (
		payment       Payment
		before, after Loan
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.GetForUpdate(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if !before.State.AcceptsPayments() {
			return ErrInvalidState
		}
		schedule, err := tx.InstallmentsForUpdate(ctx, before.ID)
		if err != nil {
			return err
		}
		alloc := Allocate(schedule, in.Value, in.Date)
		for _, inst := range alloc.Updated {
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}
		number, err := tx.NextNumber(ctx, shared.MonthlyScope(shared.PrefixReceipt, in.Date))
		if err != nil {
			return err
		}
		payment, err = tx.InsertPayment(ctx, Payment{
			LoanID:           before.ID,
			ReceiptNumber:    number,
			PaymentDate:      in.Date,
			TotalValue:       in.Value,
			PrincipalPortion: alloc.Principal,
			InterestPortion:  alloc.Interest,
			PenaltyPortion:   alloc.Penalty,
			OtherPortion:     alloc.Excess,
			Method:           in.Method,
			Reference:        strings.TrimSpace(in.Reference),
			Notes:            strings.TrimSpace(in.Notes),
			IdempotencyKey:   in.IdempotencyKey,
			RecordedBy:       in.ActorID,
			Allocations:      alloc.Lines,
		})
		if err != nil {
			return err
		}

		after = before
		after.OutstandingPrincipal = after.OutstandingPrincipal.Sub(alloc.Principal)
		after.OutstandingInterest = after.OutstandingInterest.Sub(alloc.Interest)
		after.OutstandingPenalty = after.OutstandingPenalty.Sub(alloc.Penalty)
		paid := in.Date
		after.LastPaymentDate = &paid
		switch {
		case !after.OutstandingPrincipal.IsPositive():
			after.State = StateClosed
		case after.State == StateDelinquent && !HasDelinquent(Merge(schedule, alloc.Updated)):
			after.State = StateActive
			after.DaysLate = 0
		}
		return tx.UpdateLoan(ctx, after)
	})
	return payment, before, after, err
}
