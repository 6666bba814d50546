package credit_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/credit"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/ledger/journals/journaltest"
	"github.com/coopledger/coopledger/internal/shared"
)

// memoryRepo implements credit.Repository and credit.TxRepository over maps,
// restoring its state (and the journal store's) when a transaction fails.
type memoryRepo struct {
	mu           sync.Mutex
	journal      *journaltest.Store
	loans        map[int64]credit.Loan
	installments map[int64]credit.Installment
	payments     []credit.Payment
	seq          map[string]int64
	// reverse stores installments newest first, to prove ordering is not a
	// storage property.
	reverse bool
	// failUpdate makes the next UpdateLoan of a loan fail once.
	failUpdate map[int64]error
}

func newMemoryRepo(journal *journaltest.Store) *memoryRepo {
	return &memoryRepo{
		journal:      journal,
		loans:        map[int64]credit.Loan{},
		installments: map[int64]credit.Installment{},
		seq:          map[string]int64{},
		failUpdate:   map[int64]error{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, credit.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	loans := make(map[int64]credit.Loan, len(m.loans))
	for k, v := range m.loans {
		loans[k] = v
	}
	insts := make(map[int64]credit.Installment, len(m.installments))
	for k, v := range m.installments {
		insts[k] = v
	}
	payments := append([]credit.Payment(nil), m.payments...)
	seq := make(map[string]int64, len(m.seq))
	for k, v := range m.seq {
		seq[k] = v
	}
	restoreJournal := m.journal.Snapshot()
	if err := fn(ctx, m); err != nil {
		m.loans, m.installments, m.payments, m.seq = loans, insts, payments, seq
		restoreJournal()
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (credit.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return credit.Loan{}, credit.ErrLoanNotFound
	}
	return l, nil
}

func (m *memoryRepo) List(_ context.Context, filter credit.ListFilter) ([]credit.Loan, int, error) {
	var out []credit.Loan
	for _, l := range m.loans {
		if filter.MemberID > 0 && l.MemberID != filter.MemberID {
			continue
		}
		if filter.State != "" && l.State != filter.State {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) schedule(loanID int64) []credit.Installment {
	var out []credit.Installment
	for _, inst := range m.installments {
		if inst.LoanID == loanID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if m.reverse {
			return out[i].Sequence > out[j].Sequence
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

func (m *memoryRepo) Installments(_ context.Context, loanID int64) ([]credit.Installment, error) {
	return m.schedule(loanID), nil
}

func (m *memoryRepo) Payments(_ context.Context, loanID int64) ([]credit.Payment, error) {
	var out []credit.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) PaymentByKey(_ context.Context, loanID int64, key string) (credit.Payment, error) {
	for _, p := range m.payments {
		if p.LoanID == loanID && p.IdempotencyKey == key {
			return p, nil
		}
	}
	return credit.Payment{}, shared.NewError(shared.ErrNotFound, "payment not found")
}

func (m *memoryRepo) HasDelinquentLoan(_ context.Context, memberID int64) (bool, error) {
	for _, l := range m.loans {
		if l.MemberID == memberID && l.State == credit.StateDelinquent {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) Stats(context.Context) (credit.Stats, error) {
	var s credit.Stats
	for _, l := range m.loans {
		s.Total++
		if l.State.AcceptsPayments() {
			s.Active++
			s.Portfolio = s.Portfolio.Add(l.OutstandingPrincipal)
		}
		switch l.State {
		case credit.StateActive:
			s.Current++
		case credit.StateDelinquent:
			s.Delinquent++
			s.TotalPenalty = s.TotalPenalty.Add(l.OutstandingPenalty)
		}
	}
	s.DelinquencyRatePct = credit.DelinquencyRate(s.Delinquent, s.Active)
	return s, nil
}

func (m *memoryRepo) NextNumber(_ context.Context, scope string) (string, error) {
	m.seq[scope]++
	return shared.FormatNumber(scope, m.seq[scope]), nil
}

func (m *memoryRepo) InsertLoan(_ context.Context, l credit.Loan) (credit.Loan, error) {
	l.ID = int64(len(m.loans) + 1)
	l.UpdatedAt = time.Now()
	m.loans[l.ID] = l
	return l, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id int64) (credit.Loan, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) UpdateLoan(_ context.Context, l credit.Loan) error {
	if err, ok := m.failUpdate[l.ID]; ok {
		delete(m.failUpdate, l.ID)
		return err
	}
	l.Installments = nil
	m.loans[l.ID] = l
	return nil
}

func (m *memoryRepo) InsertInstallments(_ context.Context, loanID int64, rows []credit.Installment) ([]credit.Installment, error) {
	out := make([]credit.Installment, 0, len(rows))
	for _, inst := range rows {
		inst.ID = int64(len(m.installments) + 1)
		inst.LoanID = loanID
		m.installments[inst.ID] = inst
		out = append(out, inst)
	}
	return out, nil
}

func (m *memoryRepo) InstallmentsForUpdate(_ context.Context, loanID int64) ([]credit.Installment, error) {
	return m.schedule(loanID), nil
}

func (m *memoryRepo) UpdateInstallment(_ context.Context, inst credit.Installment) error {
	m.installments[inst.ID] = inst
	return nil
}

func (m *memoryRepo) InsertPayment(_ context.Context, p credit.Payment) (credit.Payment, error) {
	p.ID = int64(len(m.payments) + 1)
	p.CreatedAt = time.Now()
	m.payments = append(m.payments, p)
	return p, nil
}

func (m *memoryRepo) OverdueLoanIDs(_ context.Context, asOf time.Time) ([]int64, error) {
	seen := map[int64]bool{}
	var ids []int64
	for _, inst := range m.installments {
		loan := m.loans[inst.LoanID]
		if !loan.State.AcceptsPayments() || !inst.State.Open() || !inst.DueDate.Before(asOf) || seen[loan.ID] {
			continue
		}
		seen[loan.ID] = true
		ids = append(ids, loan.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryRepo) Journal() journals.TxRepository { return m.journal }

// idempotencyStore mimics shared.IdempotencyStore in memory.
type idempotencyStore struct {
	keys map[string]string
}

func (s *idempotencyStore) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = module
	return nil
}

func (s *idempotencyStore) Delete(_ context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }
