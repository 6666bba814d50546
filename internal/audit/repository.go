package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	clause, args := whereClause(arg.TimelineFilters)
	args = append(args, arg.Limit, arg.Offset)
	sql := fmt.Sprintf(`SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs%s
ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	clause, args := whereClause(filters)
	rows, err := r.db.Query(ctx, `SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs`+clause+`
ORDER BY occurred_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func whereClause(f TimelineFilters) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if f.ActorID > 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func collect(rows pgx.Rows) ([]TimelineRow, error) {
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
