package credit

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/credit/amortization"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/shared"
)

// LedgerPoster posts the LOAN entry of a disbursement inside the caller's transaction.
type LedgerPoster interface {
	PostLoanDisbursed(ctx context.Context, tx journals.TxRepository, evt DisbursedEvent) (journals.JournalEntry, error)
}

// JournalNotifier runs the journal engine's post-commit effects.
type JournalNotifier interface {
	NotifyPosted(ctx context.Context, entries ...journals.JournalEntry)
}

// AuditPort receives before/after images of loan changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker guards batch runs across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// IdempotencyPort reserves client supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// DefaultMoraRate is the daily penalty rate applied to overdue installments.
var DefaultMoraRate = decimal.RequireFromString("0.001")

// Service is the credit lifecycle manager.
type Service struct {
	repo     Repository
	members  members.Directory
	poster   LedgerPoster
	notifier JournalNotifier
	audit    AuditPort
	locker   Locker
	idem     IdempotencyPort
	moraRate decimal.Decimal
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, dir members.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: dir, logger: logger, moraRate: DefaultMoraRate, now: time.Now}
}

// WithLedger enables journal posting on disbursement.
func (s *Service) WithLedger(poster LedgerPoster, notifier JournalNotifier) *Service {
	s.poster, s.notifier = poster, notifier
	return s
}

func (s *Service) WithAudit(audit AuditPort) *Service {
	s.audit = audit
	return s
}

func (s *Service) WithLocker(locker Locker) *Service {
	s.locker = locker
	return s
}

func (s *Service) WithIdempotency(idem IdempotencyPort) *Service {
	s.idem = idem
	return s
}

// WithMoraRate overrides the daily penalty rate.
func (s *Service) WithMoraRate(rate decimal.Decimal) *Service {
	if !rate.IsNegative() {
		s.moraRate = rate
	}
	return s
}

func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) today() time.Time {
	return dateOnly(s.now())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RequestInput opens a loan request.
type RequestInput struct {
	MemberID   int64
	Type       Type
	Amount     decimal.Decimal
	AnnualRate decimal.Decimal
	TermMonths int
	Frequency  amortization.Frequency
	Method     amortization.Method
	Purpose    string
	ActorID    int64
}

func (in *RequestInput) normalize() error {
	in.Amount = shared.RoundMoney(in.Amount)
	switch {
	case !in.Amount.IsPositive():
		return ErrInvalidAmount
	case in.TermMonths <= 0:
		return ErrInvalidTerm
	case in.AnnualRate.IsNegative():
		return ErrInvalidRate
	case !in.Type.Valid():
		return ErrInvalidType
	}
	if in.Frequency == "" {
		in.Frequency = amortization.FrequencyMonthly
	}
	if in.Method == "" {
		in.Method = amortization.MethodFixed
	}
	if !in.Frequency.Valid() || !in.Method.Valid() {
		return amortization.ErrInvalidTerms
	}
	in.Purpose = strings.TrimSpace(in.Purpose)
	return nil
}

// Request records a new loan in REQUESTED state.
func (s *Service) Request(ctx context.Context, in RequestInput) (Loan, error) {
	if err := in.normalize(); err != nil {
		return Loan{}, err
	}
	if _, err := members.RequireActive(ctx, s.members, in.MemberID); err != nil {
		return Loan{}, err
	}
	delinquent, err := s.repo.HasDelinquentLoan(ctx, in.MemberID)
	if err != nil {
		return Loan{}, err
	}
	if delinquent {
		return Loan{}, ErrActiveDelinquency
	}
	now := s.now()
	var created Loan
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, shared.MonthlyScope(shared.PrefixLoan, now))
		if err != nil {
			return err
		}
		created, err = tx.InsertLoan(ctx, Loan{
			Number:          number,
			MemberID:        in.MemberID,
			Type:            in.Type,
			RequestedAmount: in.Amount,
			AnnualRate:      in.AnnualRate,
			TermMonths:      in.TermMonths,
			Frequency:       in.Frequency,
			Method:          in.Method,
			State:           StateRequested,
			Purpose:         in.Purpose,
			RequestedBy:     in.ActorID,
			RequestedAt:     now,
		})
		return err
	})
	if err != nil {
		return Loan{}, err
	}
	s.record(ctx, in.ActorID, "loan.request", created.ID, shared.Change(nil, created))
	return created, nil
}

// StartReview moves a request under review.
func (s *Service) StartReview(ctx context.Context, id, actorID int64) (Loan, error) {
	return s.transition(ctx, id, actorID, "loan.review", func(l *Loan) error {
		if l.State != StateRequested {
			return ErrInvalidState
		}
		l.State = StateUnderReview
		return nil
	})
}

// ApproveInput approves a reviewable loan. Nil rate or term keep the requested ones.
type ApproveInput struct {
	LoanID     int64
	Amount     decimal.Decimal
	AnnualRate *decimal.Decimal
	TermMonths *int
	Notes      string
	ActorID    int64
}

// Approve fixes the granted terms and previews the schedule from the approval date.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (Loan, error) {
	amount := shared.RoundMoney(in.Amount)
	if !amount.IsPositive() {
		return Loan{}, ErrInvalidAmount
	}
	if in.AnnualRate != nil && in.AnnualRate.IsNegative() {
		return Loan{}, ErrInvalidRate
	}
	if in.TermMonths != nil && *in.TermMonths <= 0 {
		return Loan{}, ErrInvalidTerm
	}
	now := s.now()
	return s.transition(ctx, in.LoanID, in.ActorID, "loan.approve", func(l *Loan) error {
		if !l.State.Reviewable() {
			return ErrInvalidState
		}
		l.ApprovedAmount = amount
		if in.AnnualRate != nil {
			l.AnnualRate = *in.AnnualRate
		}
		if in.TermMonths != nil {
			l.TermMonths = *in.TermMonths
		}
		rows, err := amortization.Generate(l.terms(l.ApprovedAmount, dateOnly(now)))
		if err != nil {
			return err
		}
		l.applySummary(amortization.Summarize(rows))
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			l.Notes = notes
		}
		actor := in.ActorID
		l.ApprovedBy = &actor
		l.ApprovedAt = &now
		l.State = StateApproved
		return nil
	})
}

// Reject closes a reviewable request. The reason is mandatory.
func (s *Service) Reject(ctx context.Context, id int64, reason string, actorID int64) (Loan, error) {
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < MinRejectReasonLength {
		return Loan{}, ErrRejectReasonTooShort
	}
	return s.transition(ctx, id, actorID, "loan.reject", func(l *Loan) error {
		if !l.State.Reviewable() {
			return ErrInvalidState
		}
		l.State = StateRejected
		l.RejectionReason = reason
		actor := actorID
		l.ApprovedBy = &actor
		return nil
	})
}

// DisburseInput disburses an approved loan.
type DisburseInput struct {
	LoanID           int64
	DisbursementDate time.Time
	FirstPaymentDate time.Time
	PostJournal      bool
	Notes            string
	ActorID          int64
}

// Disburse generates the schedule at the first payment date, activates the
// loan and, when requested, posts the LOAN entry in the same transaction.
func (s *Service) Disburse(ctx context.Context, in DisburseInput) (Loan, error) {
	if in.DisbursementDate.IsZero() || in.FirstPaymentDate.IsZero() || in.FirstPaymentDate.Before(in.DisbursementDate) {
		return Loan{}, ErrInvalidDates
	}
	if in.PostJournal && s.poster == nil {
		return Loan{}, ErrNoLedger
	}
	var (
		before, after Loan
		entry         *journals.JournalEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.GetForUpdate(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if before.State != StateApproved {
			return ErrInvalidState
		}
		after = before
		rows, err := amortization.Generate(after.terms(after.ApprovedAmount, in.FirstPaymentDate))
		if err != nil {
			return err
		}
		schedule := make([]Installment, 0, len(rows))
		for _, r := range rows {
			schedule = append(schedule, Installment{
				Sequence:       r.Sequence,
				DueDate:        r.DueDate,
				Value:          r.Value,
				Principal:      r.Principal,
				Interest:       r.Interest,
				RemainingAfter: r.RemainingAfter,
				State:          InstallmentPending,
			})
		}
		if after.Installments, err = tx.InsertInstallments(ctx, after.ID, schedule); err != nil {
			return err
		}
		summary := amortization.Summarize(rows)
		after.applySummary(summary)
		after.DisbursedAmount = after.ApprovedAmount
		after.OutstandingPrincipal = after.DisbursedAmount
		after.OutstandingInterest = summary.TotalInterest
		after.OutstandingPenalty = decimal.Zero
		after.State = StateActive
		disbursed, first := in.DisbursementDate, in.FirstPaymentDate
		after.DisbursedAt = &disbursed
		after.FirstPaymentDate = &first
		actor := in.ActorID
		after.DisbursedBy = &actor
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			after.Notes = strings.TrimSpace(after.Notes + "\n" + notes)
		}
		if in.PostJournal {
			posted, err := s.poster.PostLoanDisbursed(ctx, tx.Journal(), DisbursedEvent{
				LoanID:   after.ID,
				Number:   after.Number,
				MemberID: after.MemberID,
				Date:     in.DisbursementDate,
				Amount:   after.DisbursedAmount,
				ActorID:  in.ActorID,
			})
			if err != nil {
				return err
			}
			after.DisbursementEntryID = &posted.ID
			entry = &posted
		}
		return tx.UpdateLoan(ctx, after)
	})
	if err != nil {
		return Loan{}, err
	}
	if entry != nil && s.notifier != nil {
		s.notifier.NotifyPosted(ctx, *entry)
	}
	s.record(ctx, in.ActorID, "loan.disburse", after.ID, shared.Change(before, after))
	return after, nil
}

// Simulation previews a schedule without persisting anything.
type Simulation struct {
	amortization.Summary
	Installments []amortization.Installment `json:"installments"`
}

// Simulate previews the schedule for the given terms.
func (s *Service) Simulate(terms amortization.Terms) (Simulation, error) {
	if terms.Start.IsZero() {
		terms.Start = s.today()
	}
	rows, err := amortization.Generate(terms)
	if err != nil {
		return Simulation{}, err
	}
	return Simulation{Summary: amortization.Summarize(rows), Installments: rows}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Loan, error) {
	loan, err := s.repo.Get(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	loan.Installments, err = s.repo.Installments(ctx, id)
	return loan, err
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Loan, int, error) {
	return s.repo.List(ctx, filter)
}

// Schedule returns the installments of a loan in sequence order.
func (s *Service) Schedule(ctx context.Context, id int64) ([]Installment, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Installments(ctx, id)
}

func (s *Service) Payments(ctx context.Context, id int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Payments(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// transition applies mutate to the locked loan and persists the result.
func (s *Service) transition(ctx context.Context, id, actorID int64, action string, mutate func(*Loan) error) (Loan, error) {
	var before, after Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		after = before
		if err := mutate(&after); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, after)
	})
	if err != nil {
		return Loan{}, err
	}
	s.record(ctx, actorID, action, after.ID, shared.Change(before, after))
	return after, nil
}

func (l Loan) terms(principal decimal.Decimal, start time.Time) amortization.Terms {
	return amortization.Terms{
		Principal:  principal,
		AnnualRate: l.AnnualRate,
		Periods:    l.TermMonths,
		Start:      start,
		Frequency:  l.Frequency,
		Method:     l.Method,
	}
}

func (l *Loan) applySummary(sum amortization.Summary) {
	l.InstallmentValue = sum.InstallmentValue
	l.TotalInterest = sum.TotalInterest
	l.TotalPayable = sum.TotalPayable
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "loan",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("record loan audit", slog.String("action", action), slog.Any("error", err))
	}
}
