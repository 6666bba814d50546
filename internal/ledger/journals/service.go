package journals

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// AuditPort receives before/after images of journal changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator drops derived balances after the journal changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the journal engine.
type Service struct {
	repo   Repository
	audit  AuditPort
	cache  CacheInvalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the engine. audit and cache may be nil.
func NewService(repo Repository, audit AuditPort, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostEntry validates and persists a balanced entry in its own transaction.
func (s *Service) PostEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.NotifyPosted(ctx, entry)
	return entry, nil
}

// PostEntryTx posts inside a transaction owned by the caller, which must call
// NotifyPosted after commit.
func (s *Service) PostEntryTx(ctx context.Context, tx TxRepository, in PostingInput) (JournalEntry, error) {
	debit, credit, err := in.Validate()
	if err != nil {
		return JournalEntry{}, err
	}
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		ids = append(ids, line.AccountID)
	}
	accountsByID, err := tx.AccountsByID(ctx, ids)
	if err != nil {
		return JournalEntry{}, err
	}
	lines := make([]Movement, 0, len(in.Lines))
	for idx, line := range in.Lines {
		account, ok := accountsByID[line.AccountID]
		switch {
		case !ok:
			return JournalEntry{}, wrapLine(idx, ErrAccountNotFound, line.AccountID)
		case !account.IsPostable:
			return JournalEntry{}, wrapLine(idx, ErrAccountNotPostable, line.AccountID)
		case !account.IsActive:
			return JournalEntry{}, wrapLine(idx, ErrAccountInactive, line.AccountID)
		}
		lines = append(lines, Movement{
			AccountID:      line.AccountID,
			Debit:          shared.RoundMoney(line.Debit),
			Credit:         shared.RoundMoney(line.Credit),
			ThirdPartyType: line.ThirdPartyType,
			ThirdPartyID:   line.ThirdPartyID,
			Description:    strings.TrimSpace(line.Description),
		})
	}
	number, err := tx.NextNumber(ctx, shared.MonthlyScope(shared.PrefixJournalEntry, in.Date))
	if err != nil {
		return JournalEntry{}, err
	}
	module := in.SourceModule
	if module == "" {
		module = SourceManual
	}
	entry := JournalEntry{
		Number:       number,
		Date:         in.Date,
		MovementType: in.MovementType,
		Memo:         strings.TrimSpace(in.Memo),
		Reference:    strings.TrimSpace(in.Reference),
		TotalDebit:   debit,
		TotalCredit:  credit,
		PostedBy:     in.PostedBy,
		SourceModule: module,
	}
	if in.SourceID != uuid.Nil {
		id := in.SourceID
		entry.SourceID = &id
	}
	inserted, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines, err = tx.InsertMovements(ctx, inserted.ID, lines)
	if err != nil {
		return JournalEntry{}, err
	}
	if entry.SourceID != nil {
		if err := tx.LinkSource(ctx, module, *entry.SourceID, inserted.ID); err != nil {
			return JournalEntry{}, err
		}
	}
	return inserted, nil
}

func wrapLine(idx int, err error, accountID int64) error {
	return fmt.Errorf("line %d: account %d: %w", idx+1, accountID, err)
}

// VoidEntry marks an entry voided in its own transaction. Balances are not
// reversed; every aggregate filters voided entries.
func (s *Service) VoidEntry(ctx context.Context, in VoidInput) (JournalEntry, error) {
	var before, after JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, after, err = s.VoidEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.NotifyVoided(ctx, in.ActorID, before, after)
	return after, nil
}

// VoidEntryTx voids inside a caller-owned transaction and returns the entry
// before and after the change for NotifyVoided.
func (s *Service) VoidEntryTx(ctx context.Context, tx TxRepository, in VoidInput) (JournalEntry, JournalEntry, error) {
	if err := in.validate(); err != nil {
		return JournalEntry{}, JournalEntry{}, err
	}
	current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, JournalEntry{}, err
	}
	if current.Voided {
		return JournalEntry{}, JournalEntry{}, ErrAlreadyVoided
	}
	at := s.now()
	reason := strings.TrimSpace(in.Reason)
	if err := tx.MarkVoided(ctx, current.ID, reason, in.ActorID, at); err != nil {
		return JournalEntry{}, JournalEntry{}, err
	}
	voided := current
	voided.Voided = true
	voided.VoidReason = reason
	actor := in.ActorID
	voided.VoidedBy = &actor
	voided.VoidedAt = &at
	return current, voided, nil
}

// NotifyPosted invalidates cached balances and emits audit records for
// committed entries.
func (s *Service) NotifyPosted(ctx context.Context, entries ...JournalEntry) {
	if len(entries) == 0 {
		return
	}
	s.invalidate(ctx)
	for _, entry := range entries {
		s.record(ctx, entry.PostedBy, "journal.post", entry.ID, shared.Change(nil, map[string]any{
			"number":        entry.Number,
			"movement_type": entry.MovementType,
			"total":         entry.TotalDebit.StringFixed(2),
			"source_module": entry.SourceModule,
		}))
	}
}

// NotifyVoided invalidates cached balances and emits the void audit record.
func (s *Service) NotifyVoided(ctx context.Context, actorID int64, before, after JournalEntry) {
	s.invalidate(ctx)
	s.record(ctx, actorID, "journal.void", after.ID, shared.Change(
		map[string]any{"number": before.Number, "voided": before.Voided},
		map[string]any{"number": after.Number, "voided": after.Voided, "reason": after.VoidReason},
	))
}

func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// FindAnomalies lists non-voided entries that break partida doble or
// movement exclusivity in storage.
func (s *Service) FindAnomalies(ctx context.Context) ([]Anomaly, error) {
	return s.repo.FindAnomalies(ctx, shared.Tolerance)
}

// Totals sums debits and credits of lines.
func Totals(lines []Movement) (debit, credit decimal.Decimal) {
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate balance cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("record journal audit", slog.String("action", action), slog.Any("error", err))
	}
}
