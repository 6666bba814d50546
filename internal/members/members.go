// Package members reads the member registry owned by the membership system.
package members

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopledger/coopledger/internal/shared"
)

// State of a member in the external registry.
type State string

const (
	StateActive    State = "ACTIVE"
	StateInactive  State = "INACTIVE"
	StateSuspended State = "SUSPENDED"
	StateWithdrawn State = "WITHDRAWN"
)

// Member is the subset of registry data the financial core needs.
type Member struct {
	ID             int64  `json:"id"`
	DocumentNumber string `json:"document_number"`
	Name           string `json:"name"`
	State          State  `json:"state"`
}

// Active reports whether the member may take part in financial operations.
func (m Member) Active() bool { return m.State == StateActive }

var (
	ErrMemberNotFound = shared.NewError(shared.ErrNotFound, "members: member not found")
	ErrMemberInactive = shared.NewError(shared.ErrConflict, "members: member is not active")
)

// Directory looks members up by id.
type Directory interface {
	Get(ctx context.Context, id int64) (Member, error)
}

// RequireActive loads the member and fails unless it is active.
func RequireActive(ctx context.Context, dir Directory, id int64) (Member, error) {
	m, err := dir.Get(ctx, id)
	if err != nil {
		return Member{}, err
	}
	if !m.Active() {
		return m, ErrMemberInactive
	}
	return m, nil
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Directory over the read-only members table.
func NewRepository(db *pgxpool.Pool) Directory {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := r.db.QueryRow(ctx, `SELECT id, document_number, full_name, state FROM members WHERE id=$1`, id).
		Scan(&m.ID, &m.DocumentNumber, &m.Name, &m.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrMemberNotFound
	}
	return m, err
}

// Static is an in-memory Directory used by tests and local tooling.
type Static map[int64]Member

func (s Static) Get(_ context.Context, id int64) (Member, error) {
	m, ok := s[id]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m, nil
}
