// Package journaltest provides an in-memory journal store for tests of the
// journal engine and of the modules that post through it.
package journaltest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	ledgershared "github.com/coopledger/coopledger/internal/ledger/shared"
	"github.com/coopledger/coopledger/internal/shared"
)

// Store implements journals.Repository and journals.TxRepository.
type Store struct {
	mu       sync.Mutex
	accounts map[int64]accounts.Account
	entries  []journals.JournalEntry
	links    map[string]int64
	seq      map[string]int64
	nextLine int64
	// FailInsert makes InsertEntry fail, for rollback tests.
	FailInsert error
}

// New returns a store seeded with accts.
func New(accts ...accounts.Account) *Store {
	s := &Store{accounts: map[int64]accounts.Account{}, links: map[string]int64{}, seq: map[string]int64{}}
	for _, a := range accts {
		s.accounts[a.ID] = a
	}
	return s
}

// Account is a shorthand for an active postable account.
func Account(id int64, code string, typ accounts.AccountType) accounts.Account {
	return accounts.Account{ID: id, Code: code, Name: code, Type: typ, NormalSide: typ.DefaultNormalSide(), Level: 4, IsPostable: true, IsActive: true}
}

// Snapshot captures the store and returns a func that restores it.
func (s *Store) Snapshot() func() {
	entries := make([]journals.JournalEntry, len(s.entries))
	copy(entries, s.entries)
	links := make(map[string]int64, len(s.links))
	for k, v := range s.links {
		links[k] = v
	}
	seq := make(map[string]int64, len(s.seq))
	for k, v := range s.seq {
		seq[k] = v
	}
	return func() {
		s.entries = entries
		s.links = links
		s.seq = seq
	}
}

// Entries returns a copy of every stored entry.
func (s *Store) Entries() []journals.JournalEntry {
	out := make([]journals.JournalEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Corrupt overwrites the stored lines of an entry, simulating out-of-band edits.
func (s *Store) Corrupt(entryID int64, lines []journals.Movement) {
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			s.entries[i].Lines = lines
		}
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (journals.JournalEntry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return journals.JournalEntry{}, journals.ErrEntryNotFound
}

func (s *Store) List(_ context.Context, filter journals.ListFilter) ([]journals.JournalEntry, int, error) {
	var out []journals.JournalEntry
	for _, e := range s.entries {
		if e.Voided && !filter.IncludeVoided {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		if filter.MovementType != "" && e.MovementType != filter.MovementType {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, len(out), nil
}

func (s *Store) Stats(context.Context) (journals.Stats, error) {
	var st journals.Stats
	for _, e := range s.entries {
		if e.Voided {
			st.VoidedEntries++
			continue
		}
		st.Entries++
		st.Movements += int64(len(e.Lines))
		st.LastNumber = e.Number
		d := e.Date
		st.LastEntryDate = &d
	}
	return st, nil
}

func (s *Store) FindAnomalies(_ context.Context, tolerance decimal.Decimal) ([]journals.Anomaly, error) {
	var out []journals.Anomaly
	for _, e := range s.entries {
		if e.Voided {
			continue
		}
		debit, credit := journals.Totals(e.Lines)
		check := ""
		badSides := false
		for _, l := range e.Lines {
			if l.Debit.IsNegative() || l.Credit.IsNegative() || l.Debit.IsPositive() == l.Credit.IsPositive() {
				badSides = true
			}
		}
		switch {
		case debit.Sub(credit).Abs().GreaterThan(tolerance):
			check = journals.CheckImbalanced
		case badSides:
			check = journals.CheckMovementSides
		case debit.Sub(e.TotalDebit).Abs().GreaterThan(tolerance) || credit.Sub(e.TotalCredit).Abs().GreaterThan(tolerance):
			check = journals.CheckTotalsMismatch
		}
		if check != "" {
			out = append(out, journals.Anomaly{EntryID: e.ID, Number: e.Number, Check: check, Debit: debit, Credit: credit})
		}
	}
	return out, nil
}

func (s *Store) AccountsByID(_ context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := map[int64]accounts.Account{}
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *Store) NextNumber(_ context.Context, scope string) (string, error) {
	s.seq[scope]++
	return shared.FormatNumber(scope, s.seq[scope]), nil
}

func (s *Store) InsertEntry(_ context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	if s.FailInsert != nil {
		return journals.JournalEntry{}, s.FailInsert
	}
	e.ID = int64(len(s.entries) + 1)
	e.Balanced = true
	e.PostedAt = time.Now()
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *Store) InsertMovements(_ context.Context, entryID int64, lines []journals.Movement) ([]journals.Movement, error) {
	out := make([]journals.Movement, 0, len(lines))
	for _, l := range lines {
		s.nextLine++
		l.ID = s.nextLine
		l.EntryID = entryID
		out = append(out, l)
	}
	s.entries[entryID-1].Lines = out
	return out, nil
}

func (s *Store) LinkSource(_ context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := fmt.Sprintf("%s/%s", module, ref)
	if _, ok := s.links[key]; ok {
		return ledgershared.ErrSourceAlreadyLinked
	}
	s.links[key] = entryID
	return nil
}

func (s *Store) GetEntryForUpdate(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return s.Get(ctx, id)
}

func (s *Store) MarkVoided(_ context.Context, id int64, reason string, actorID int64, at time.Time) error {
	e := &s.entries[id-1]
	if e.Voided {
		return journals.ErrAlreadyVoided
	}
	e.Voided = true
	e.VoidReason = reason
	e.VoidedBy = &actorID
	e.VoidedAt = &at
	return nil
}
