package credit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/credit"
	"github.com/coopledger/coopledger/internal/integration"
	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/ledger/journals/journaltest"
	"github.com/coopledger/coopledger/internal/ledger/mappings"
	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/platform/cache"
	"github.com/coopledger/coopledger/internal/shared"
)

const (
	activeMember   = 1
	inactiveMember = 2
	portfolioID    = 10
	cashID         = 11
)

var (
	disbursedOn  = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	firstPayment = time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	repo  *memoryRepo
	store *journaltest.Store
	svc   *credit.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := journaltest.New(
		journaltest.Account(portfolioID, "141105", accounts.AccountTypeAsset),
		journaltest.Account(cashID, "111005", accounts.AccountTypeAsset),
	)
	repo := newMemoryRepo(store)
	journal := journals.NewService(store, nil, nil, nil)
	hooks := integration.NewHooks(journal, mappings.Static{
		mappings.ModuleCredit + "/" + mappings.KeyPortfolio: portfolioID,
		mappings.ModuleCredit + "/" + mappings.KeyCash:      cashID,
	})
	dir := members.Static{
		activeMember:   {ID: activeMember, Name: "Ana", State: members.StateActive},
		inactiveMember: {ID: inactiveMember, Name: "Luis", State: members.StateInactive},
	}
	svc := credit.NewService(repo, dir, nil).
		WithLedger(hooks, journal).
		WithNow(func() time.Time { return disbursedOn })
	return &fixture{repo: repo, store: store, svc: svc}
}

func (f *fixture) request(t *testing.T) credit.Loan {
	t.Helper()
	loan, err := f.svc.Request(context.Background(), credit.RequestInput{
		MemberID:   activeMember,
		Type:       credit.TypeConsumption,
		Amount:     dec("1200000"),
		AnnualRate: dec("0.18"),
		TermMonths: 12,
		Purpose:    "Compra de equipo",
		ActorID:    7,
	})
	require.NoError(t, err)
	return loan
}

func (f *fixture) disbursed(t *testing.T) credit.Loan {
	t.Helper()
	ctx := context.Background()
	loan := f.request(t)
	_, err := f.svc.StartReview(ctx, loan.ID, 7)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, credit.ApproveInput{LoanID: loan.ID, Amount: dec("1200000"), ActorID: 7})
	require.NoError(t, err)
	loan, err = f.svc.Disburse(ctx, credit.DisburseInput{
		LoanID:           loan.ID,
		DisbursementDate: disbursedOn,
		FirstPaymentDate: firstPayment,
		PostJournal:      true,
		ActorID:          7,
	})
	require.NoError(t, err)
	return loan
}

func TestRequestNumbersLoanPerMonth(t *testing.T) {
	f := newFixture(t)
	first := f.request(t)
	second := f.request(t)

	assert.Equal(t, credit.StateRequested, first.State)
	assert.Equal(t, "CR-202501-000001", first.Number)
	assert.Equal(t, "CR-202501-000002", second.Number)
}

func TestRequestRejectsInactiveMember(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Request(context.Background(), credit.RequestInput{
		MemberID:   inactiveMember,
		Type:       credit.TypeConsumption,
		Amount:     dec("500000"),
		AnnualRate: dec("0.18"),
		TermMonths: 6,
	})
	require.ErrorIs(t, err, members.ErrMemberInactive)
}

func TestRequestValidatesTerms(t *testing.T) {
	f := newFixture(t)
	base := credit.RequestInput{MemberID: activeMember, Type: credit.TypeHousing, Amount: dec("1000"), AnnualRate: dec("0.1"), TermMonths: 12}

	zero := base
	zero.Amount = dec("0")
	_, err := f.svc.Request(context.Background(), zero)
	require.ErrorIs(t, err, credit.ErrInvalidAmount)

	noTerm := base
	noTerm.TermMonths = 0
	_, err = f.svc.Request(context.Background(), noTerm)
	require.ErrorIs(t, err, credit.ErrInvalidTerm)

	badType := base
	badType.Type = "YATE"
	_, err = f.svc.Request(context.Background(), badType)
	require.ErrorIs(t, err, credit.ErrInvalidType)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t)

	_, err := f.svc.Reject(ctx, loan.ID, "  no  ", 7)
	require.ErrorIs(t, err, credit.ErrRejectReasonTooShort)

	rejected, err := f.svc.Reject(ctx, loan.ID, "Capacidad de pago insuficiente", 7)
	require.NoError(t, err)
	assert.Equal(t, credit.StateRejected, rejected.State)
	assert.Equal(t, "Capacidad de pago insuficiente", rejected.RejectionReason)

	_, err = f.svc.Approve(ctx, credit.ApproveInput{LoanID: loan.ID, Amount: dec("1000"), ActorID: 7})
	require.ErrorIs(t, err, credit.ErrInvalidState)
}

func TestApprovePreviewsSchedule(t *testing.T) {
	f := newFixture(t)
	loan := f.request(t)
	term := 24

	approved, err := f.svc.Approve(context.Background(), credit.ApproveInput{LoanID: loan.ID, Amount: dec("1000000"), TermMonths: &term, ActorID: 9})
	require.NoError(t, err)
	assert.Equal(t, credit.StateApproved, approved.State)
	assert.Equal(t, 24, approved.TermMonths)
	assert.True(t, approved.InstallmentValue.IsPositive())
	require.NotNil(t, approved.ApprovedBy)
	assert.EqualValues(t, 9, *approved.ApprovedBy)
}

func TestDisburseRequiresApproval(t *testing.T) {
	f := newFixture(t)
	loan := f.request(t)

	_, err := f.svc.Disburse(context.Background(), credit.DisburseInput{
		LoanID:           loan.ID,
		DisbursementDate: disbursedOn,
		FirstPaymentDate: firstPayment,
	})
	require.ErrorIs(t, err, credit.ErrInvalidState)

	_, err = f.svc.Disburse(context.Background(), credit.DisburseInput{
		LoanID:           loan.ID,
		DisbursementDate: firstPayment,
		FirstPaymentDate: disbursedOn,
	})
	require.ErrorIs(t, err, credit.ErrInvalidDates)
}

func TestDisbursePostsLoanEntry(t *testing.T) {
	f := newFixture(t)
	loan := f.disbursed(t)

	assert.Equal(t, credit.StateActive, loan.State)
	assert.True(t, loan.OutstandingPrincipal.Equal(dec("1200000")))
	assert.InDelta(t, 110016, loan.InstallmentValue.InexactFloat64(), 1)
	require.NotNil(t, loan.DisbursementEntryID)

	schedule, err := f.svc.Schedule(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 12)
	assert.True(t, schedule[0].DueDate.Equal(firstPayment))

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, *loan.DisbursementEntryID, entry.ID)
	assert.Equal(t, journals.MovementLoan, entry.MovementType)
	assert.Equal(t, loan.Number, entry.Reference)
	assert.True(t, entry.TotalDebit.Equal(dec("1200000")))
	require.Len(t, entry.Lines, 2)
	assert.EqualValues(t, portfolioID, entry.Lines[0].AccountID)
	require.NotNil(t, entry.Lines[0].ThirdPartyID)
	assert.EqualValues(t, activeMember, *entry.Lines[0].ThirdPartyID)
}

func TestDisburseRollsBackWhenPostingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t)
	_, err := f.svc.Approve(ctx, credit.ApproveInput{LoanID: loan.ID, Amount: dec("1200000"), ActorID: 7})
	require.NoError(t, err)

	f.store.FailInsert = errors.New("disk full")
	_, err = f.svc.Disburse(ctx, credit.DisburseInput{
		LoanID:           loan.ID,
		DisbursementDate: disbursedOn,
		FirstPaymentDate: firstPayment,
		PostJournal:      true,
	})
	require.Error(t, err)

	after, err := f.svc.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.StateApproved, after.State)
	assert.Empty(t, after.Installments)
	assert.Empty(t, f.store.Entries())
}

func TestCleanPayoffClosesLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.disbursed(t)
	schedule, err := f.svc.Schedule(ctx, loan.ID)
	require.NoError(t, err)

	for _, inst := range schedule {
		payment, err := f.svc.RegisterPayment(ctx, credit.PaymentInput{
			LoanID:  loan.ID,
			Value:   inst.Value,
			Date:    inst.DueDate,
			ActorID: 7,
		})
		require.NoError(t, err)
		assert.True(t, payment.OtherPortion.IsZero())
		require.Len(t, payment.Allocations, 1)
		assert.Equal(t, inst.Sequence, payment.Allocations[0].Sequence)
	}

	closed, err := f.svc.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.StateClosed, closed.State)
	assert.True(t, closed.OutstandingPrincipal.IsZero(), closed.OutstandingPrincipal.String())
	assert.True(t, closed.OutstandingInterest.IsZero(), closed.OutstandingInterest.String())
	for _, inst := range closed.Installments {
		assert.Equal(t, credit.InstallmentPaid, inst.State)
	}

	_, err = f.svc.RegisterPayment(ctx, credit.PaymentInput{LoanID: loan.ID, Value: dec("100"), Date: firstPayment})
	require.ErrorIs(t, err, credit.ErrInvalidState)
}

func TestPaymentCoversInstallmentsInSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.disbursed(t)
	f.repo.reverse = true

	double := loan.InstallmentValue.Mul(dec("2"))
	payment, err := f.svc.RegisterPayment(ctx, credit.PaymentInput{LoanID: loan.ID, Value: double, Date: firstPayment})
	require.NoError(t, err)
	assert.Equal(t, "REC-202502-000001", payment.ReceiptNumber)
	require.Len(t, payment.Allocations, 2)
	assert.Equal(t, 1, payment.Allocations[0].Sequence)
	assert.Equal(t, 2, payment.Allocations[1].Sequence)

	f.repo.reverse = false
	schedule, err := f.svc.Schedule(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.InstallmentPaid, schedule[0].State)
	assert.Equal(t, credit.InstallmentPaid, schedule[1].State)
	assert.Equal(t, credit.InstallmentPending, schedule[2].State)
}

func TestAccrueMoraIsRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.disbursed(t)
	asOf := firstPayment.AddDate(0, 0, 10)

	first, err := f.svc.AccrueMora(ctx, asOf)
	require.NoError(t, err)
	second, err := f.svc.AccrueMora(ctx, asOf)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Loans)
	assert.Equal(t, 1, first.Installments)
	assert.True(t, first.TotalPenalty.Equal(second.TotalPenalty))

	got, err := f.svc.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.StateDelinquent, got.State)
	assert.Equal(t, 10, got.DaysLate)
	expected := shared.RoundMoney(got.Installments[0].Value.Mul(dec("0.001")).Mul(dec("10")))
	assert.True(t, got.Installments[0].Penalty.Equal(expected), got.Installments[0].Penalty.String())
	assert.True(t, got.OutstandingPenalty.Equal(expected))
	assert.Equal(t, credit.InstallmentPending, got.Installments[1].State)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delinquent)
	assert.True(t, stats.DelinquencyRatePct.Equal(dec("100")))
}

func TestDelinquentMemberCannotRequest(t *testing.T) {
	f := newFixture(t)
	f.disbursed(t)
	_, err := f.svc.AccrueMora(context.Background(), firstPayment.AddDate(0, 0, 3))
	require.NoError(t, err)

	_, err = f.svc.Request(context.Background(), credit.RequestInput{
		MemberID:   activeMember,
		Type:       credit.TypeCalamity,
		Amount:     dec("300000"),
		AnnualRate: dec("0.12"),
		TermMonths: 6,
	})
	require.ErrorIs(t, err, credit.ErrActiveDelinquency)
}

func TestPaymentReturnsDelinquentLoanToActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.disbursed(t)
	asOf := firstPayment.AddDate(0, 0, 5)
	_, err := f.svc.AccrueMora(ctx, asOf)
	require.NoError(t, err)

	late, err := f.svc.Get(ctx, loan.ID)
	require.NoError(t, err)
	due := late.Installments[0].Value

	payment, err := f.svc.RegisterPayment(ctx, credit.PaymentInput{LoanID: loan.ID, Value: due, Date: asOf})
	require.NoError(t, err)
	assert.True(t, payment.PenaltyPortion.Equal(late.OutstandingPenalty))

	current, err := f.svc.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.StateActive, current.State)
	assert.Zero(t, current.DaysLate)
	assert.True(t, current.OutstandingPenalty.IsZero())
	assert.True(t, current.OutstandingPrincipal.Equal(late.OutstandingPrincipal.Sub(late.Installments[0].Principal)))
	assert.Equal(t, credit.InstallmentPaid, current.Installments[0].State)
}

func TestPaymentReplayReturnsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.WithIdempotency(&idempotencyStore{keys: map[string]string{}})
	loan := f.disbursed(t)
	in := credit.PaymentInput{LoanID: loan.ID, Value: dec("50000"), Date: firstPayment, IdempotencyKey: "pay-001"}

	first, err := f.svc.RegisterPayment(ctx, in)
	require.NoError(t, err)
	replay, err := f.svc.RegisterPayment(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ReceiptNumber, replay.ReceiptNumber)
	payments, err := f.svc.Payments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestFailedPaymentReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	idem := &idempotencyStore{keys: map[string]string{}}
	f.svc.WithIdempotency(idem)
	loan := f.request(t)

	_, err := f.svc.RegisterPayment(context.Background(), credit.PaymentInput{LoanID: loan.ID, Value: dec("100"), IdempotencyKey: "pay-002"})
	require.ErrorIs(t, err, credit.ErrInvalidState)
	assert.Empty(t, idem.keys)
}

func TestPaymentReplayWhileInFlightIsRetryable(t *testing.T) {
	f := newFixture(t)
	idem := &idempotencyStore{keys: map[string]string{}}
	f.svc.WithIdempotency(idem)
	loan := f.disbursed(t)
	idem.keys[fmt.Sprintf("%d:pay-003", loan.ID)] = credit.IdempotencyModule

	_, err := f.svc.RegisterPayment(context.Background(), credit.PaymentInput{LoanID: loan.ID, Value: dec("50000"), Date: firstPayment, IdempotencyKey: "pay-003"})
	require.ErrorIs(t, err, credit.ErrPaymentInProgress)
	assert.True(t, shared.IsRetryable(err))

	payments, err := f.svc.Payments(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPaymentKeysAreScopedToLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.WithIdempotency(&idempotencyStore{keys: map[string]string{}})
	first := f.disbursed(t)
	second := f.disbursed(t)

	a, err := f.svc.RegisterPayment(ctx, credit.PaymentInput{LoanID: first.ID, Value: dec("50000"), Date: firstPayment, IdempotencyKey: "pay-004"})
	require.NoError(t, err)
	b, err := f.svc.RegisterPayment(ctx, credit.PaymentInput{LoanID: second.ID, Value: dec("50000"), Date: firstPayment, IdempotencyKey: "pay-004"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ReceiptNumber, b.ReceiptNumber)
	assert.Equal(t, second.ID, b.LoanID)
}

func TestAccrueMoraRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client, time.Minute)
	f.svc.WithLocker(locker)

	asOf := firstPayment.AddDate(0, 0, 1)
	release, err := locker.Acquire(context.Background(), shared.MoraAccrualLockKey(asOf))
	require.NoError(t, err)

	_, err = f.svc.AccrueMora(context.Background(), asOf)
	require.ErrorIs(t, err, credit.ErrMoraInProgress)

	require.NoError(t, release(context.Background()))
	_, err = f.svc.AccrueMora(context.Background(), asOf)
	require.NoError(t, err)
}

func TestAccrueMoraRetriesSerializationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.disbursed(t)
	second := f.disbursed(t)
	f.repo.failUpdate[first.ID] = fmt.Errorf("update loan: %w", shared.ErrConcurrentUpdate)

	result, err := f.svc.AccrueMora(ctx, firstPayment.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Loans)

	for _, id := range []int64{first.ID, second.ID} {
		loan, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, credit.StateDelinquent, loan.State)
		assert.Equal(t, 4, loan.DaysLate)
	}
}

func TestAccrueMoraKeepsCommittedLoansOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.disbursed(t)
	second := f.disbursed(t)
	f.repo.failUpdate[second.ID] = errors.New("disk full")

	_, err := f.svc.AccrueMora(ctx, firstPayment.AddDate(0, 0, 4))
	require.Error(t, err)

	committed, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.StateDelinquent, committed.State)
	failed, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.StateActive, failed.State)
	assert.Equal(t, credit.InstallmentPending, failed.Installments[0].State)
}

func TestDisburseWithJournalNeedsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.WithLedger(nil, nil)
	loan := f.request(t)
	_, err := f.svc.StartReview(ctx, loan.ID, 7)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, credit.ApproveInput{LoanID: loan.ID, Amount: dec("1200000"), ActorID: 7})
	require.NoError(t, err)

	in := credit.DisburseInput{LoanID: loan.ID, DisbursementDate: disbursedOn, FirstPaymentDate: firstPayment, PostJournal: true, ActorID: 7}
	_, err = f.svc.Disburse(ctx, in)
	require.ErrorIs(t, err, credit.ErrNoLedger)
	assert.ErrorIs(t, err, shared.ErrValidation)

	in.PostJournal = false
	disbursed, err := f.svc.Disburse(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, credit.StateActive, disbursed.State)
	assert.Nil(t, disbursed.DisbursementEntryID)
}
