package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
	ledgershared "github.com/coopledger/coopledger/internal/ledger/shared"
	"github.com/coopledger/coopledger/internal/platform/db"
	"github.com/coopledger/coopledger/internal/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error)
	Stats(ctx context.Context) (Stats, error)
	FindAnomalies(ctx context.Context, tolerance decimal.Decimal) ([]Anomaly, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes of a posting. Other modules obtain one from
// their own pgx.Tx with NewTxRepository so that their rows and the entry
// commit together.
type TxRepository interface {
	AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	NextNumber(ctx context.Context, scope string) (string, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertMovements(ctx context.Context, entryID int64, lines []Movement) ([]Movement, error)
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkVoided(ctx context.Context, id int64, reason string, actorID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, date, movement_type, memo, reference, total_debit, total_credit, balanced, voided,
COALESCE(void_reason, ''), voided_by, voided_at, posted_by, posted_at, source_module, source_id`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.MovementType, &e.Memo, &e.Reference, &e.TotalDebit, &e.TotalCredit,
		&e.Balanced, &e.Voided, &e.VoidReason, &e.VoidedBy, &e.VoidedAt, &e.PostedBy, &e.PostedAt, &e.SourceModule, &e.SourceID)
	return e, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadMovements(ctx context.Context, q querier, entryID int64) ([]Movement, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, COALESCE(third_party_type, ''), third_party_id, description
FROM journal_movements WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.EntryID, &m.AccountID, &m.Debit, &m.Credit, &m.ThirdPartyType, &m.ThirdPartyID, &m.Description); err != nil {
			return nil, err
		}
		lines = append(lines, m)
	}
	return lines, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadMovements(ctx, r.db, id)
	return entry, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeVoided {
		where = append(where, "NOT voided")
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if filter.MovementType != "" {
		args = append(args, filter.MovementType)
		where = append(where, fmt.Sprintf("movement_type = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries`+clause+
		fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.QueryRow(ctx, `SELECT
	COUNT(*) FILTER (WHERE NOT voided),
	COUNT(*) FILTER (WHERE voided),
	(SELECT COUNT(*) FROM journal_movements m JOIN journal_entries e ON e.id = m.entry_id WHERE NOT e.voided)
FROM journal_entries`).Scan(&s.Entries, &s.VoidedEntries, &s.Movements)
	if err != nil {
		return Stats{}, err
	}
	var (
		number string
		date   time.Time
	)
	err = r.db.QueryRow(ctx, `SELECT number, date FROM journal_entries WHERE NOT voided ORDER BY date DESC, id DESC LIMIT 1`).Scan(&number, &date)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return Stats{}, err
	default:
		s.LastNumber = number
		s.LastEntryDate = &date
	}
	return s, nil
}

func (r *repository) FindAnomalies(ctx context.Context, tolerance decimal.Decimal) ([]Anomaly, error) {
	rows, err := r.db.Query(ctx, `WITH sums AS (
	SELECT e.id, e.number, e.total_debit, e.total_credit,
		COALESCE(SUM(m.debit), 0) AS debit, COALESCE(SUM(m.credit), 0) AS credit,
		COUNT(*) FILTER (WHERE (m.debit > 0) = (m.credit > 0) OR m.debit < 0 OR m.credit < 0) AS bad_sides
	FROM journal_entries e
	LEFT JOIN journal_movements m ON m.entry_id = e.id
	WHERE NOT e.voided
	GROUP BY e.id
)
SELECT id, number, debit, credit,
	CASE
		WHEN ABS(debit - credit) > $1 THEN '`+CheckImbalanced+`'
		WHEN bad_sides > 0 THEN '`+CheckMovementSides+`'
		ELSE '`+CheckTotalsMismatch+`'
	END
FROM sums
WHERE ABS(debit - credit) > $1 OR bad_sides > 0 OR ABS(debit - total_debit) > $1 OR ABS(credit - total_credit) > $1
ORDER BY id`, tolerance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var anomalies []Anomaly
	for rows.Next() {
		var a Anomaly
		if err := rows.Scan(&a.EntryID, &a.Number, &a.Debit, &a.Credit, &a.Check); err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the journal writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accounts.SelectColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.Account, len(ids))
	for rows.Next() {
		a, err := accounts.Scan(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) NextNumber(ctx context.Context, scope string) (string, error) {
	return shared.NextNumber(ctx, r.tx, scope)
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	var sourceID any
	if e.SourceID != nil {
		sourceID = *e.SourceID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, date, movement_type, memo, reference, total_debit, total_credit, balanced, posted_by, source_module, source_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,$8,$9,$10) RETURNING id, posted_at`,
		e.Number, e.Date, e.MovementType, e.Memo, e.Reference, e.TotalDebit, e.TotalCredit, e.PostedBy, e.SourceModule, sourceID).
		Scan(&e.ID, &e.PostedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_number") {
			return JournalEntry{}, ErrEntryNumberCollision
		}
		return JournalEntry{}, err
	}
	e.Balanced = true
	return e, nil
}

func (r *txRepository) InsertMovements(ctx context.Context, entryID int64, lines []Movement) ([]Movement, error) {
	out := make([]Movement, 0, len(lines))
	for _, m := range lines {
		m.EntryID = entryID
		var thirdPartyType any
		if m.ThirdPartyType != "" {
			thirdPartyType = m.ThirdPartyType
		}
		if err := r.tx.QueryRow(ctx, `INSERT INTO journal_movements (entry_id, account_id, debit, credit, third_party_type, third_party_id, description)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, entryID, m.AccountID, m.Debit, m.Credit, thirdPartyType, m.ThirdPartyID, m.Description).Scan(&m.ID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_source_links") {
			return ledgershared.ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadMovements(ctx, r.tx, id)
	return entry, err
}

func (r *txRepository) MarkVoided(ctx context.Context, id int64, reason string, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET voided=TRUE, void_reason=$2, voided_by=$3, voided_at=$4, updated_at=NOW()
WHERE id=$1 AND NOT voided`, id, reason, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyVoided
	}
	return nil
}
