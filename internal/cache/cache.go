package cache

import (
	"context"
	"time"

	"barberpos/backend/internal/domain"
)

// CommissionCache holds computed commission summaries keyed by period.
type CommissionCache interface {
	Get(ctx context.Context, key string) (*domain.CommissionSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.CommissionSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopCommissionCache struct{}

func (NoopCommissionCache) Get(_ context.Context, _ string) (*domain.CommissionSummary, bool, error) {
	return nil, false, nil
}

func (NoopCommissionCache) Set(_ context.Context, _ string, _ *domain.CommissionSummary, _ time.Duration) error {
	return nil
}

func (NoopCommissionCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

func CommissionKey(period string) string {
	return "barberpos:commissions:" + period
}
