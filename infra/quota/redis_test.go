package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainops/instructor-dispatch/core/model"
)

func newTestCounter(t *testing.T, quota int) *RedisCounter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounterWithClient(client, "test:usage", quota)
}

func TestRedisCounterQuota(t *testing.T) {
	ctx := context.Background()
	c := newTestCounter(t, 3)
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.TryAcquire(ctx, day))
	}
	err := c.TryAcquire(ctx, day)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrQuotaExceeded)

	used, err := c.Used(ctx, day)
	require.NoError(t, err)
	// The failed acquire rolled its increment back.
	assert.Equal(t, 3, used)
	assert.Equal(t, 3, c.Quota())
}

func TestRedisCounterDayRollover(t *testing.T) {
	ctx := context.Background()
	c := newTestCounter(t, 1)
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	require.NoError(t, c.TryAcquire(ctx, day1))
	assert.ErrorIs(t, c.TryAcquire(ctx, day1), model.ErrQuotaExceeded)

	// A new day has its own counter.
	require.NoError(t, c.TryAcquire(ctx, day2))

	used, err := c.Used(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestRedisCounterUsedEmpty(t *testing.T) {
	ctx := context.Background()
	c := newTestCounter(t, 5)
	used, err := c.Used(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}
