package savings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/platform/db"
	"github.com/coopledger/coopledger/internal/shared"
)

// ListFilter narrows account listings.
type ListFilter struct {
	MemberID int64
	Type     Type
	State    State
	Limit    int
	Offset   int
}

// Repository reads accounts and opens write transactions.
type Repository interface {
	Get(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context, filter ListFilter) ([]Account, int, error)
	Movements(ctx context.Context, accountID int64, limit, offset int) ([]Movement, int, error)
	Stats(ctx context.Context) (Stats, error)
	Settings(ctx context.Context) (Settings, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository writes inside one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, scope string) (string, error)
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	InsertAccount(ctx context.Context, a Account) (Account, error)
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	// ActiveAccountIDs lists active accounts in ascending id order.
	ActiveAccountIDs(ctx context.Context) ([]int64, error)
	// HasMovement reports whether the account already logged a movement of
	// type with the given reference.
	HasMovement(ctx context.Context, accountID int64, typ MovementType, reference string) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, number, member_id, type, state, available_balance, blocked_balance, annual_rate, management_fee,
goal_amount, monthly_quota, scheduled_start, scheduled_end, term_days, opened_on, maturity_date, auto_renew, notes, opened_by,
created_at, updated_at, cancelled_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Number, &a.MemberID, &a.Type, &a.State, &a.AvailableBalance, &a.BlockedBalance, &a.AnnualRate,
		&a.ManagementFee, &a.GoalAmount, &a.MonthlyQuota, &a.ScheduledStart, &a.ScheduledEnd, &a.TermDays, &a.OpenedOn,
		&a.MaturityDate, &a.AutoRenew, &a.Notes, &a.OpenedBy, &a.CreatedAt, &a.UpdatedAt, &a.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

const movementColumns = `id, number, account_id, type, value, balance_before, balance_after, description, reference, recorded_by, created_at`

const settingsColumns = `on_demand_rate, scheduled_rate, term_deposit_rate, contributions_rate, contractual_rate, min_opening,
min_deposit, min_term_deposit, gmf_active, gmf_rate, monthly_management_fee`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadSettings(ctx context.Context, q querier) (Settings, error) {
	var s Settings
	err := q.QueryRow(ctx, `SELECT `+settingsColumns+` FROM savings_settings WHERE id = 1`).Scan(&s.OnDemandRate, &s.ScheduledRate, &s.TermDepositRate, &s.ContributionsRate,
		&s.ContractualRate, &s.MinOpening, &s.MinDeposit, &s.MinTermDeposit, &s.GMFActive, &s.GMFRate, &s.MonthlyManagementFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultSettings(), nil
	}
	return s, err
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM savings_accounts WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Account, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.MemberID > 0 {
		args = append(args, filter.MemberID)
		where = append(where, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM savings_accounts`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT `+accountColumns+` FROM savings_accounts%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repository) Movements(ctx context.Context, accountID int64, limit, offset int) ([]Movement, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM savings_movements WHERE account_id=$1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+movementColumns+` FROM savings_movements WHERE account_id=$1
ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Number, &m.AccountID, &m.Type, &m.Value, &m.BalanceBefore, &m.BalanceAfter,
			&m.Description, &m.Reference, &m.RecordedBy, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{BalanceByType: map[Type]decimal.Decimal{}, CountByState: map[State]int{}}
	rows, err := r.db.Query(ctx, `SELECT type, state, COUNT(*), COALESCE(SUM(available_balance), 0)
FROM savings_accounts GROUP BY type, state`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			typ     Type
			state   State
			count   int
			balance decimal.Decimal
		)
		if err := rows.Scan(&typ, &state, &count, &balance); err != nil {
			return Stats{}, err
		}
		stats.add(typ, state, count, balance)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	stats.finish()
	return stats, nil
}

func (s *Stats) add(typ Type, state State, count int, balance decimal.Decimal) {
	s.Total += count
	if state == StateActive {
		s.Active += count
	}
	s.CountByState[state] += count
	s.BalanceByType[typ] = s.BalanceByType[typ].Add(balance)
	s.TotalBalance = s.TotalBalance.Add(balance)
}

func (s *Stats) finish() {
	if s.Active > 0 {
		s.AverageBalance = shared.RoundMoney(s.TotalBalance.Div(decimal.NewFromInt(int64(s.Active))))
	}
}

func (r *repository) Settings(ctx context.Context) (Settings, error) {
	return loadSettings(ctx, r.db)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextNumber(ctx context.Context, scope string) (string, error) {
	return shared.NextNumber(ctx, r.tx, scope)
}

func (r *txRepository) Settings(ctx context.Context) (Settings, error) {
	return loadSettings(ctx, r.tx)
}

func (r *txRepository) SaveSettings(ctx context.Context, s Settings) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO savings_settings (id, `+settingsColumns+`, updated_at)
VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
ON CONFLICT (id) DO UPDATE SET on_demand_rate=EXCLUDED.on_demand_rate, scheduled_rate=EXCLUDED.scheduled_rate,
term_deposit_rate=EXCLUDED.term_deposit_rate, contributions_rate=EXCLUDED.contributions_rate,
contractual_rate=EXCLUDED.contractual_rate, min_opening=EXCLUDED.min_opening, min_deposit=EXCLUDED.min_deposit,
min_term_deposit=EXCLUDED.min_term_deposit, gmf_active=EXCLUDED.gmf_active, gmf_rate=EXCLUDED.gmf_rate,
monthly_management_fee=EXCLUDED.monthly_management_fee, updated_at=NOW()`,
		s.OnDemandRate, s.ScheduledRate, s.TermDepositRate, s.ContributionsRate, s.ContractualRate, s.MinOpening,
		s.MinDeposit, s.MinTermDeposit, s.GMFActive, s.GMFRate, s.MonthlyManagementFee)
	return err
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO savings_accounts (number, member_id, type, state, available_balance, blocked_balance,
annual_rate, management_fee, goal_amount, monthly_quota, scheduled_start, scheduled_end, term_days, opened_on, maturity_date,
auto_renew, notes, opened_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18) RETURNING id, created_at, updated_at`,
		a.Number, a.MemberID, a.Type, a.State, a.AvailableBalance, a.BlockedBalance, a.AnnualRate, a.ManagementFee,
		a.GoalAmount, a.MonthlyQuota, a.ScheduledStart, a.ScheduledEnd, a.TermDays, a.OpenedOn, a.MaturityDate, a.AutoRenew,
		a.Notes, a.OpenedBy).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_savings_accounts_number") {
		return Account{}, ErrAccountCollision
	}
	return a, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM savings_accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateAccount(ctx context.Context, a Account) error {
	_, err := r.tx.Exec(ctx, `UPDATE savings_accounts SET state=$2, available_balance=$3, blocked_balance=$4, annual_rate=$5,
management_fee=$6, goal_amount=$7, monthly_quota=$8, notes=$9, cancelled_at=$10, updated_at=NOW() WHERE id=$1`,
		a.ID, a.State, a.AvailableBalance, a.BlockedBalance, a.AnnualRate, a.ManagementFee, a.GoalAmount, a.MonthlyQuota,
		a.Notes, a.CancelledAt)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO savings_movements (number, account_id, type, value, balance_before, balance_after,
description, reference, recorded_by) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		m.Number, m.AccountID, m.Type, m.Value, m.BalanceBefore, m.BalanceAfter, m.Description, m.Reference, m.RecordedBy).
		Scan(&m.ID, &m.CreatedAt)
	if db.IsUniqueViolation(err, "uq_savings_movements_number") {
		return Movement{}, ErrMovementCollision
	}
	return m, err
}

func (r *txRepository) ActiveAccountIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM savings_accounts WHERE state = 'ACTIVE' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) HasMovement(ctx context.Context, accountID int64, typ MovementType, reference string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM savings_movements WHERE account_id=$1 AND type=$2 AND reference=$3)`,
		accountID, typ, reference).Scan(&exists)
	return exists, err
}
