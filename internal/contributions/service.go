package contributions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/shared"
)

// LedgerPoster posts the accounting entry of a recorded contribution inside
// the caller's transaction.
type LedgerPoster interface {
	PostContribution(ctx context.Context, tx journals.TxRepository, evt RecordedEvent) (journals.JournalEntry, error)
}

// Journal is the part of the journal engine contributions drive directly.
type Journal interface {
	VoidEntryTx(ctx context.Context, tx journals.TxRepository, in journals.VoidInput) (journals.JournalEntry, journals.JournalEntry, error)
	NotifyPosted(ctx context.Context, entries ...journals.JournalEntry)
	NotifyVoided(ctx context.Context, actorID int64, before, after journals.JournalEntry)
}

// AuditPort receives before/after images of contribution changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo    Repository
	members members.Directory
	poster  LedgerPoster
	journal Journal
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the service. poster may be nil when no ledger integration
// is configured, in which case registrations never post.
func NewService(repo Repository, dir members.Directory, poster LedgerPoster, journal Journal, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: dir, poster: poster, journal: journal, audit: audit, logger: logger, now: time.Now}
}

// Register records a paid contribution and, when requested, its CONTRIBUTION
// journal entry in the same transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Contribution, error) {
	if err := in.normalize(); err != nil {
		return Contribution{}, err
	}
	if _, err := members.RequireActive(ctx, s.members, in.MemberID); err != nil {
		return Contribution{}, err
	}
	var (
		created Contribution
		entry   *journals.JournalEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, shared.MonthlyScope(shared.PrefixReceipt, in.Date))
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, Contribution{
			ReceiptNumber: number,
			MemberID:      in.MemberID,
			Date:          in.Date,
			Value:         in.Value,
			Type:          in.Type,
			Status:        StatusPaid,
			Notes:         in.Notes,
			RecordedBy:    in.ActorID,
		})
		if err != nil {
			return err
		}
		if !in.PostsJournal() || s.poster == nil {
			return nil
		}
		posted, err := s.poster.PostContribution(ctx, tx.Journal(), RecordedEvent{
			ContributionID: created.ID,
			ReceiptNumber:  created.ReceiptNumber,
			MemberID:       created.MemberID,
			Date:           created.Date,
			Value:          created.Value,
			Type:           created.Type,
			RecordedBy:     created.RecordedBy,
		})
		if err != nil {
			return err
		}
		if err := tx.SetJournalEntry(ctx, created.ID, posted.ID); err != nil {
			return err
		}
		created.JournalEntryID = &posted.ID
		entry = &posted
		return nil
	})
	if err != nil {
		return Contribution{}, err
	}
	if entry != nil && s.journal != nil {
		s.journal.NotifyPosted(ctx, *entry)
	}
	s.record(ctx, in.ActorID, "contribution.register", created.ID, shared.Change(nil, created))
	return created, nil
}

// Void marks the contribution voided together with its journal entry.
func (s *Service) Void(ctx context.Context, in VoidInput) (Contribution, error) {
	reason := strings.TrimSpace(in.Reason)
	if len([]rune(reason)) < MinVoidReasonLength {
		return Contribution{}, ErrVoidReasonTooShort
	}
	var (
		before, after           Contribution
		entryBefore, entryAfter journals.JournalEntry
	)
	at := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.GetForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if before.Status == StatusVoided {
			return ErrAlreadyVoided
		}
		if before.JournalEntryID != nil && s.journal != nil {
			entryBefore, entryAfter, err = s.journal.VoidEntryTx(ctx, tx.Journal(), journals.VoidInput{
				EntryID: *before.JournalEntryID,
				Reason:  reason,
				ActorID: in.ActorID,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.MarkVoided(ctx, before.ID, reason, in.ActorID, at); err != nil {
			return err
		}
		after = before
		after.Status = StatusVoided
		after.VoidReason = reason
		actor := in.ActorID
		after.VoidedBy = &actor
		after.VoidedAt = &at
		return nil
	})
	if err != nil {
		return Contribution{}, err
	}
	if entryAfter.ID != 0 {
		s.journal.NotifyVoided(ctx, in.ActorID, entryBefore, entryAfter)
	}
	s.record(ctx, in.ActorID, "contribution.void", after.ID, shared.Change(before, after))
	return after, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Contribution, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Contribution, int, error) {
	return s.repo.List(ctx, filter)
}

// MemberTotal sums the paid contributions of a member.
func (s *Service) MemberTotal(ctx context.Context, memberID int64) (MemberTotal, error) {
	if _, err := s.members.Get(ctx, memberID); err != nil {
		return MemberTotal{}, err
	}
	return s.repo.MemberTotal(ctx, memberID)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "contribution",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("record contribution audit", slog.String("action", action), slog.Any("error", err))
	}
}
