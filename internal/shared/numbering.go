package shared

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document number prefixes.
const (
	PrefixJournalEntry    = "AS"
	PrefixLoan            = "CR"
	PrefixReceipt         = "REC"
	PrefixSavingsAccount  = "AH"
	PrefixSavingsMovement = "MOV"
)

// MonthlyScope returns the per-month numbering scope, e.g. AS-202412.
func MonthlyScope(prefix string, at time.Time) string {
	return prefix + "-" + at.Format("200601")
}

// DailyScope returns the per-day numbering scope, e.g. MOV-20241231.
func DailyScope(prefix string, at time.Time) string {
	return prefix + "-" + at.Format("20060102")
}

// SavingsAccountScope returns the per-type, per-month scope, e.g. AH-VISTA-202412.
func SavingsAccountScope(typeCode string, at time.Time) string {
	return PrefixSavingsAccount + "-" + typeCode + "-" + at.Format("200601")
}

// FormatNumber appends the six digit sequence to scope.
func FormatNumber(scope string, seq int64) string {
	return fmt.Sprintf("%s-%06d", scope, seq)
}

// ParseSequence extracts the trailing sequence of a formatted number.
func ParseSequence(number string) (int64, error) {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, fmt.Errorf("shared: malformed document number %q", number)
	}
	return strconv.ParseInt(number[idx+1:], 10, 64)
}

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextSequence increments the counter of scope and returns the new value. The
// upsert takes a row lock on the scope, so concurrent callers are serialized
// until the surrounding transaction ends.
func NextSequence(ctx context.Context, q Querier, scope string) (int64, error) {
	var next int64
	err := q.QueryRow(ctx, `INSERT INTO number_sequences (scope, last_value, updated_at) VALUES ($1, 1, NOW())
ON CONFLICT (scope) DO UPDATE SET last_value = number_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`, scope).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("shared: next sequence %s: %w", scope, err)
	}
	return next, nil
}

// NextNumber reserves the next formatted number of scope.
func NextNumber(ctx context.Context, q Querier, scope string) (string, error) {
	seq, err := NextSequence(ctx, q, scope)
	if err != nil {
		return "", err
	}
	return FormatNumber(scope, seq), nil
}
