package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	ledgershared "github.com/coopledger/coopledger/internal/ledger/shared"
	"github.com/coopledger/coopledger/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	List(ctx context.Context) ([]AccountMapping, error)
	Upsert(ctx context.Context, module, key string, accountID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, shared.NewError(shared.ErrValidation, "ledger: mapping module and key required")
	}
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`,
		strings.ToUpper(module), strings.ToUpper(key)).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ledgershared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func (r *repository) List(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings ORDER BY module, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert points module/key at accountID.
func (r *repository) Upsert(ctx context.Context, module, key string, accountID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (module, key, account_id) VALUES ($1,$2,$3)
ON CONFLICT (module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`,
		strings.ToUpper(module), strings.ToUpper(key), accountID)
	return err
}

// Static is an in-memory Repository keyed by "MODULE/KEY", used by tests and
// local tooling.
type Static map[string]int64

func (s Static) Get(_ context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, shared.NewError(shared.ErrValidation, "ledger: mapping module and key required")
	}
	module, key = strings.ToUpper(module), strings.ToUpper(key)
	id, ok := s[module+"/"+key]
	if !ok {
		return AccountMapping{}, ledgershared.ErrMappingNotFound
	}
	return AccountMapping{Module: module, Key: key, AccountID: id}, nil
}

func (s Static) List(context.Context) ([]AccountMapping, error) {
	out := make([]AccountMapping, 0, len(s))
	for k, id := range s {
		module, key, _ := strings.Cut(k, "/")
		out = append(out, AccountMapping{Module: module, Key: key, AccountID: id})
	}
	return out, nil
}

func (s Static) Upsert(_ context.Context, module, key string, accountID int64) error {
	s[strings.ToUpper(module)+"/"+strings.ToUpper(key)] = accountID
	return nil
}
