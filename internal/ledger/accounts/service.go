package accounts

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/coopledger/coopledger/internal/shared"
)

// AuditPort receives before/after images of account changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the chart of accounts.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds the registry service. audit may be nil.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// Create validates hierarchy rules and stores a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return Account{}, shared.NewError(shared.ErrValidation, "ledger: code and name required")
	}
	if !in.Type.Valid() {
		return Account{}, ErrInvalidType
	}
	account := Account{
		Code:        in.Code,
		Name:        in.Name,
		Type:        in.Type,
		NormalSide:  in.NormalSide,
		ParentID:    in.ParentID,
		Level:       MinLevel,
		IsPostable:  in.IsPostable,
		IsActive:    true,
		Description: in.Description,
	}
	if account.NormalSide == "" {
		account.NormalSide = in.Type.DefaultNormalSide()
	}
	if in.ParentID != nil {
		parent, err := s.repo.Get(ctx, *in.ParentID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return Account{}, ErrParentNotFound
			}
			return Account{}, err
		}
		if !strings.HasPrefix(in.Code, parent.Code) || in.Code == parent.Code {
			return Account{}, ErrCodeOutOfParent
		}
		account.Level = parent.Level + 1
	}
	if account.Level > MaxLevel {
		return Account{}, ErrInvalidLevel
	}
	if _, err := s.repo.GetByCode(ctx, in.Code); err == nil {
		return Account{}, ErrDuplicateCode
	} else if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}
	created, err := s.repo.Insert(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.create", created.ID, shared.Change(nil, created))
	return created, nil
}

// Update applies the non-nil fields of in.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Account, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	next := current
	if in.Name != nil {
		next.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.IsPostable != nil {
		next.IsPostable = *in.IsPostable
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if next.Name == "" {
		return Account{}, shared.NewError(shared.ErrValidation, "ledger: name required")
	}
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.update", id, shared.Change(current, updated))
	return updated, nil
}

// Deactivate soft-disables an account. Accounts are never deleted.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) (Account, error) {
	inactive := false
	return s.Update(ctx, id, UpdateInput{IsActive: &inactive, ActorID: actorID})
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
