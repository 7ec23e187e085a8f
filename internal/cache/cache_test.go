package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberpos/backend/internal/domain"
)

func TestMemoryCommissionCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCommissionCache()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	summary := &domain.CommissionSummary{
		Period: "2026-05",
		Amount: decimal.NewFromInt(14),
		Totals: []domain.CommissionTotal{{BarberID: "barber-joao", Amount: decimal.NewFromInt(14)}},
	}
	require.NoError(t, c.Set(ctx, CommissionKey("2026-05"), summary, time.Minute))

	got, ok, err := c.Get(ctx, CommissionKey("2026-05"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(14)))

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, CommissionKey("2026-05"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCommissionCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCommissionCache()

	require.NoError(t, c.Set(ctx, "k", &domain.CommissionSummary{Period: "2026-05"}, time.Hour))
	require.NoError(t, c.Invalidate(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopCommissionCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	var c CommissionCache = NoopCommissionCache{}

	require.NoError(t, c.Set(ctx, "k", &domain.CommissionSummary{}, time.Hour))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
