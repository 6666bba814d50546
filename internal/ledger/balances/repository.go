package balances

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository aggregates journal movements.
type Repository interface {
	Sums(ctx context.Context, q Query) (debit, credit decimal.Decimal, err error)
	AccountTotals(ctx context.Context, from, to *time.Time) ([]AccountTotal, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Sums(ctx context.Context, q Query) (decimal.Decimal, decimal.Decimal, error) {
	where := []string{"m.account_id = $1", "NOT e.voided"}
	args := []any{q.AccountID}
	if q.ThirdPartyType != "" {
		args = append(args, q.ThirdPartyType)
		where = append(where, fmt.Sprintf("m.third_party_type = $%d", len(args)))
	}
	if q.ThirdPartyID != nil {
		args = append(args, *q.ThirdPartyID)
		where = append(where, fmt.Sprintf("m.third_party_id = $%d", len(args)))
	}
	where, args = dateRange(where, args, q.From, q.To)
	var debit, credit decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(m.debit), 0), COALESCE(SUM(m.credit), 0)
FROM journal_movements m JOIN journal_entries e ON e.id = m.entry_id
WHERE `+strings.Join(where, " AND "), args...).Scan(&debit, &credit)
	return debit, credit, err
}

func (r *repository) AccountTotals(ctx context.Context, from, to *time.Time) ([]AccountTotal, error) {
	where, args := dateRange([]string{"NOT e.voided"}, nil, from, to)
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.normal_side, a.level,
	COALESCE(SUM(m.debit), 0), COALESCE(SUM(m.credit), 0)
FROM journal_movements m
JOIN journal_entries e ON e.id = m.entry_id
JOIN accounts a ON a.id = m.account_id
WHERE `+strings.Join(where, " AND ")+`
GROUP BY a.id
ORDER BY a.code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotal
	for rows.Next() {
		var t AccountTotal
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &t.NormalSide, &t.Level, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func dateRange(where []string, args []any, from, to *time.Time) ([]string, []any) {
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("e.date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("e.date <= $%d", len(args)))
	}
	return where, args
}
