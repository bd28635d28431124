package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache keeps the last provider balance per credential owner.
// Owners are opaque keys such as "platform_account" or "tenant_account:<user id>".
type BalanceCache interface {
	Get(ctx context.Context, owner string) (int64, bool, error)
	Set(ctx context.Context, owner string, balance int64) error
	Invalidate(ctx context.Context, owner string) error
}

// RedisBalanceCache implements BalanceCache on redis
type RedisBalanceCache struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBalanceCache creates a balance cache; keys are {prefix}balance:{owner}
func NewRedisBalanceCache(rc *redis.Client, prefix string, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{rc: rc, prefix: prefix, ttl: ttl}
}

func (c *RedisBalanceCache) key(owner string) string {
	return c.prefix + "balance:" + owner
}

func (c *RedisBalanceCache) Get(ctx context.Context, owner string) (int64, bool, error) {
	raw, err := c.rc.Get(ctx, c.key(owner)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached balance: %w", err)
	}

	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// corrupt entry, treat as a miss
		_ = c.rc.Del(ctx, c.key(owner)).Err()
		return 0, false, nil
	}
	return balance, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, owner string, balance int64) error {
	if err := c.rc.Set(ctx, c.key(owner), strconv.FormatInt(balance, 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, owner string) error {
	if err := c.rc.Del(ctx, c.key(owner)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached balance: %w", err)
	}
	return nil
}

// NoopBalanceCache never hits
type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(context.Context, string) (int64, bool, error) { return 0, false, nil }
func (NoopBalanceCache) Set(context.Context, string, int64) error         { return nil }
func (NoopBalanceCache) Invalidate(context.Context, string) error         { return nil }
