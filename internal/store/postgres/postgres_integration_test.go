package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"barberpos/backend/internal/store"
	"barberpos/backend/internal/store/memory"
)

// testDatabaseURL returns BARBERPOS_TEST_DATABASE_URL when set, otherwise it
// starts a throwaway postgres container. The test is skipped when neither is
// available.
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("BARBERPOS_TEST_DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("set BARBERPOS_TEST_DATABASE_URL or run without -short to use a postgres container")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(
		ctx,
		"postgres:15",
		tcpostgres.WithDatabase("barberpos"),
		tcpostgres.WithUsername("barberpos"),
		tcpostgres.WithPassword("barberpos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return url
}

func TestStateStoreSaveOverwritesAndLoads(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testDatabaseURL(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = 'it-key'`)
		_ = s.Close()
	})

	_, found, err := s.Load(ctx, "it-key")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "it-key", []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, "it-key", []byte(`{"v":2}`)))

	value, found, err := s.Load(ctx, "it-key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"v":2}`, string(value))
}

func TestWorkingSetPersistsThroughPostgres(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testDatabaseURL(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = $1`, memory.StateKey)
		_ = s.Close()
	})

	working, err := memory.Open(ctx, s, true)
	require.NoError(t, err)
	require.NoError(t, working.Apply(ctx, store.ChangeSet{
		StockDeltas: []store.StockDelta{{ProductID: "prod-shampoo", Delta: -2}},
	}))

	reloaded, err := memory.Open(ctx, s, true)
	require.NoError(t, err)
	shampoo, err := reloaded.GetProduct(ctx, "prod-shampoo")
	require.NoError(t, err)
	assert.Equal(t, 10, shampoo.Stock)
}
