package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/shared"
)

func TestRequireActive(t *testing.T) {
	dir := Static{
		1: {ID: 1, Name: "Ana Rojas", State: StateActive},
		2: {ID: 2, Name: "Luis Peña", State: StateSuspended},
	}
	ctx := context.Background()

	m, err := RequireActive(ctx, dir, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ana Rojas", m.Name)

	_, err = RequireActive(ctx, dir, 2)
	assert.ErrorIs(t, err, ErrMemberInactive)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = RequireActive(ctx, dir, 3)
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
