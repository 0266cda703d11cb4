// Package quota provides the Redis-backed provider usage counter shared
// between server replicas. The counter is date-scoped: each day has its own
// key, so the quota resets at day rollover without any scheduled job.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trainops/instructor-dispatch/core/distance"
	"github.com/trainops/instructor-dispatch/core/model"
)

// Config holds the Redis connection settings.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// KeyPrefix namespaces the usage keys.
	KeyPrefix string `json:"key_prefix"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "dispatch:geo:usage"
	}
}

// RedisCounter implements distance.UsageCounter on a Redis instance. INCR is
// atomic across processes; an increment past the quota is rolled back with
// DECR so the stored count never exceeds the quota.
type RedisCounter struct {
	client *redis.Client
	prefix string
	quota  int
}

// NewRedisCounter connects and verifies the Redis instance.
func NewRedisCounter(ctx context.Context, cfg Config, quota int) (*RedisCounter, error) {
	cfg.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("quota: redis ping: %w", err)
	}
	return &RedisCounter{client: client, prefix: cfg.KeyPrefix, quota: quota}, nil
}

// NewRedisCounterWithClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisCounterWithClient(client *redis.Client, prefix string, quota int) *RedisCounter {
	if prefix == "" {
		prefix = "dispatch:geo:usage"
	}
	return &RedisCounter{client: client, prefix: prefix, quota: quota}
}

var _ distance.UsageCounter = (*RedisCounter)(nil)

func (c *RedisCounter) key(day time.Time) string {
	return fmt.Sprintf("%s:%s", c.prefix, model.MidnightUTC(day).Format("2006-01-02"))
}

// TryAcquire reserves one provider call for the day.
func (c *RedisCounter) TryAcquire(ctx context.Context, day time.Time) error {
	key := c.key(day)
	used, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("quota: incr: %w", err)
	}
	if used == 1 {
		// Keep yesterday's key around briefly for inspection, then expire.
		if err := c.client.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			return fmt.Errorf("quota: expire: %w", err)
		}
	}
	if used > int64(c.quota) {
		if err := c.client.Decr(ctx, key).Err(); err != nil {
			return fmt.Errorf("quota: rollback decr: %w", err)
		}
		return fmt.Errorf("%w: %d/%d calls used", model.ErrQuotaExceeded, c.quota, c.quota)
	}
	return nil
}

// Used reports today's call count.
func (c *RedisCounter) Used(ctx context.Context, day time.Time) (int, error) {
	used, err := c.client.Get(ctx, c.key(day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: get: %w", err)
	}
	return used, nil
}

// Quota returns the configured daily quota.
func (c *RedisCounter) Quota() int { return c.quota }

// Close releases the Redis connection.
func (c *RedisCounter) Close() error { return c.client.Close() }
