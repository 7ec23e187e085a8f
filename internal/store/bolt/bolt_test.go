package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberpos/backend/internal/store/memory"
)

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)

	_, found, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "k", []byte(`{"a":1}`)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err := reopened.Load(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"a":1}`, string(value))
}

func TestWorkingSetSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	backend, err := Open(path)
	require.NoError(t, err)
	working, err := memory.Open(ctx, backend, true)
	require.NoError(t, err)
	require.NoError(t, working.SetStock(ctx, "prod-comb", 7))
	require.NoError(t, backend.Close())

	backend, err = Open(path)
	require.NoError(t, err)
	defer backend.Close()
	reloaded, err := memory.Open(ctx, backend, true)
	require.NoError(t, err)

	comb, err := reloaded.GetProduct(ctx, "prod-comb")
	require.NoError(t, err)
	assert.Equal(t, 7, comb.Stock)
}
