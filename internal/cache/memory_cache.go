package cache

import (
	"context"
	"sync"
	"time"

	"barberpos/backend/internal/domain"
)

type memoryEntry struct {
	value     domain.CommissionSummary
	expiresAt time.Time
}

// MemoryCommissionCache is a process-local TTL cache used when no redis
// address is configured.
type MemoryCommissionCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCommissionCache() *MemoryCommissionCache {
	return &MemoryCommissionCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCommissionCache) Get(_ context.Context, key string) (*domain.CommissionSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	summary := entry.value
	summary.Totals = append([]domain.CommissionTotal(nil), entry.value.Totals...)
	return &summary, true, nil
}

func (c *MemoryCommissionCache) Set(_ context.Context, key string, value *domain.CommissionSummary, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *value
	stored.Totals = append([]domain.CommissionTotal(nil), value.Totals...)
	c.entries[key] = memoryEntry{value: stored, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCommissionCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}
