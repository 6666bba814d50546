package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/coopledger/coopledger/internal/shared"
)

func TestClassifySerializationFailure(t *testing.T) {
	err := Classify(fmt.Errorf("update loan: %w", &pgconn.PgError{Code: "40001"}))
	assert.True(t, errors.Is(err, shared.ErrConcurrentUpdate))
	assert.True(t, shared.IsRetryable(err))
}

func TestClassifyLeavesOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, Classify(plain))

	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_accounts_code"}
	assert.False(t, shared.IsRetryable(Classify(unique)))
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_loans_number"})
	assert.True(t, IsUniqueViolation(err, "uq_loans_number"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "uq_accounts_code"))
	assert.False(t, IsUniqueViolation(errors.New("other"), ""))
}
