package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"barberpos/backend/internal/domain"
)

// RedisCommissionCache keeps commission summaries as JSON strings with a
// server-side expiry, so every API instance sharing the redis sees the same
// invalidations.
type RedisCommissionCache struct {
	client redis.UniversalClient
}

func NewRedisCommissionCache(addr string, password string, db int) *RedisCommissionCache {
	return NewRedisCommissionCacheFromClient(redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}))
}

func NewRedisCommissionCacheFromClient(client redis.UniversalClient) *RedisCommissionCache {
	return &RedisCommissionCache{client: client}
}

func (c *RedisCommissionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCommissionCache) Close() error {
	return c.client.Close()
}

// Get reports a miss for absent or expired keys. A payload that no longer
// decodes into a summary is dropped and also reported as a miss.
func (c *RedisCommissionCache) Get(ctx context.Context, key string) (*domain.CommissionSummary, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var summary domain.CommissionSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			return nil, false, fmt.Errorf("redis drop undecodable %s: %w", key, delErr)
		}
		return nil, false, nil
	}
	return &summary, true, nil
}

func (c *RedisCommissionCache) Set(ctx context.Context, key string, value *domain.CommissionSummary, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCommissionCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
