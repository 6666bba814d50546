package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDomainErrorsUnwrapToKind(t *testing.T) {
	errLocal := NewError(ErrValidation, "ledger: entry is not balanced")
	wrapped := fmt.Errorf("post entry: %w", errLocal)

	assert.True(t, errors.Is(wrapped, errLocal))
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, "ledger: entry is not balanced", errLocal.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("tx: %w", ErrConcurrentUpdate)))
	assert.True(t, IsRetryable(NewError(ErrNumberConflict, "duplicate receipt")))
	assert.False(t, IsRetryable(ErrValidation))
}

func TestRoundMoneyHalfAwayFromZero(t *testing.T) {
	assert.True(t, RoundMoney(decimal.RequireFromString("10.005")).Equal(decimal.RequireFromString("10.01")))
	assert.True(t, RoundMoney(decimal.RequireFromString("-10.005")).Equal(decimal.RequireFromString("-10.01")))
}

func TestFormatMoneyUsesDecimalComma(t *testing.T) {
	out := FormatMoney(decimal.RequireFromString("1234567.5"))
	assert.True(t, strings.HasPrefix(out, "$"))
	assert.True(t, strings.HasSuffix(out, ",50"), out)
}
