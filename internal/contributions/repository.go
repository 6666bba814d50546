package contributions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/platform/db"
	"github.com/coopledger/coopledger/internal/shared"
)

// Repository reads contributions and opens write transactions.
type Repository interface {
	Get(ctx context.Context, id int64) (Contribution, error)
	List(ctx context.Context, filter ListFilter) ([]Contribution, int, error)
	MemberTotal(ctx context.Context, memberID int64) (MemberTotal, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository writes inside one transaction shared with the journal engine.
type TxRepository interface {
	NextNumber(ctx context.Context, scope string) (string, error)
	Insert(ctx context.Context, c Contribution) (Contribution, error)
	GetForUpdate(ctx context.Context, id int64) (Contribution, error)
	SetJournalEntry(ctx context.Context, id, entryID int64) error
	MarkVoided(ctx context.Context, id int64, reason string, actorID int64, at time.Time) error
	Journal() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, receipt_number, member_id, date, value, type, status, journal_entry_id, notes, recorded_by,
COALESCE(void_reason, ''), voided_by, voided_at, created_at`

func scan(row pgx.Row) (Contribution, error) {
	var c Contribution
	err := row.Scan(&c.ID, &c.ReceiptNumber, &c.MemberID, &c.Date, &c.Value, &c.Type, &c.Status, &c.JournalEntryID, &c.Notes,
		&c.RecordedBy, &c.VoidReason, &c.VoidedBy, &c.VoidedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contribution{}, ErrNotFound
	}
	return c, err
}

func (r *repository) Get(ctx context.Context, id int64) (Contribution, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM contributions WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Contribution, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.MemberID > 0 {
		args = append(args, filter.MemberID)
		where = append(where, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contributions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT `+columns+` FROM contributions%s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Contribution
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) MemberTotal(ctx context.Context, memberID int64) (MemberTotal, error) {
	mt := MemberTotal{MemberID: memberID}
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(value), 0) FROM contributions WHERE member_id=$1 AND status=$2`,
		memberID, StatusPaid).Scan(&mt.Count, &mt.Total)
	return mt, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, journal: journals.NewTxRepository(tx)})
	})
}

type txRepository struct {
	tx      pgx.Tx
	journal journals.TxRepository
}

func (r *txRepository) Journal() journals.TxRepository { return r.journal }

func (r *txRepository) NextNumber(ctx context.Context, scope string) (string, error) {
	return shared.NextNumber(ctx, r.tx, scope)
}

func (r *txRepository) Insert(ctx context.Context, c Contribution) (Contribution, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO contributions (receipt_number, member_id, date, value, type, status, notes, recorded_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		c.ReceiptNumber, c.MemberID, c.Date, c.Value, c.Type, c.Status, c.Notes, c.RecordedBy).Scan(&c.ID, &c.CreatedAt)
	if db.IsUniqueViolation(err, "uq_contributions_receipt") {
		return Contribution{}, ErrReceiptCollision
	}
	return c, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Contribution, error) {
	return scan(r.tx.QueryRow(ctx, `SELECT `+columns+` FROM contributions WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) SetJournalEntry(ctx context.Context, id, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE contributions SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, id, entryID)
	return err
}

func (r *txRepository) MarkVoided(ctx context.Context, id int64, reason string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE contributions SET status=$2, void_reason=$3, voided_by=$4, voided_at=$5, updated_at=NOW() WHERE id=$1`,
		id, StatusVoided, reason, actorID, at)
	return err
}
