package savings

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGMF(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.GMF(decimal.NewFromInt(50000)).Equal(decimal.NewFromInt(200)))
	assert.True(t, s.GMF(decimal.RequireFromString("1234.56")).Equal(decimal.RequireFromString("0.49")))

	s.GMFActive = false
	assert.True(t, s.GMF(decimal.NewFromInt(50000)).IsZero())
}

func TestRateFor(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.RateFor(TypeTermDeposit).Equal(decimal.NewFromInt(4)))
	assert.True(t, s.RateFor(TypeContractual).IsZero())
	assert.True(t, s.RateFor("UNKNOWN").IsZero())
}

func TestSettingsUpdateApply(t *testing.T) {
	rate := decimal.RequireFromString("0.8")
	off := false
	got, err := SettingsUpdate{OnDemandRate: &rate, GMFActive: &off}.apply(DefaultSettings())
	require.NoError(t, err)
	assert.True(t, got.OnDemandRate.Equal(rate))
	assert.False(t, got.GMFActive)
	assert.True(t, got.MinOpening.Equal(decimal.NewFromInt(50000)))

	negative := decimal.NewFromInt(-1)
	_, err = SettingsUpdate{MinDeposit: &negative}.apply(DefaultSettings())
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func TestMovementDirection(t *testing.T) {
	credits := []MovementType{MovementOpening, MovementDeposit, MovementInterest, MovementTransferIn}
	debits := []MovementType{MovementWithdrawal, MovementGMF, MovementManagementFee, MovementTransferOut, MovementCancellation}
	for _, m := range credits {
		assert.True(t, m.Credits(), m)
	}
	for _, m := range debits {
		assert.False(t, m.Credits(), m)
	}
	assert.Equal(t, "APOR", TypeContributions.Code())
	assert.True(t, MonthlyInterest(decimal.NewFromInt(1200000), decimal.NewFromInt(2)).Equal(decimal.NewFromInt(2000)))
}
