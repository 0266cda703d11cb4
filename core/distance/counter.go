package distance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
)

// UsageCounter gates provider calls against the daily quota. TryAcquire must
// be atomic regardless of caller parallelism since it protects a hard
// external limit.
type UsageCounter interface {
	// TryAcquire reserves one provider call for the given day, returning
	// model.ErrQuotaExceeded when the quota is spent.
	TryAcquire(ctx context.Context, day time.Time) error
	Used(ctx context.Context, day time.Time) (int, error)
	Quota() int
}

// MemoryCounter is a mutex-guarded process-local UsageCounter with an
// explicit reset-at-midnight lifecycle: the counter is keyed by day and
// rolls over when the day changes.
type MemoryCounter struct {
	mu    sync.Mutex
	quota int
	day   time.Time
	used  int
}

// NewMemoryCounter creates a counter with the given daily quota.
func NewMemoryCounter(quota int) *MemoryCounter {
	return &MemoryCounter{quota: quota}
}

var _ UsageCounter = (*MemoryCounter)(nil)

func (c *MemoryCounter) TryAcquire(_ context.Context, day time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(day)
	if c.used >= c.quota {
		return fmt.Errorf("%w: %d/%d calls used", model.ErrQuotaExceeded, c.used, c.quota)
	}
	c.used++
	return nil
}

func (c *MemoryCounter) Used(_ context.Context, day time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(day)
	return c.used, nil
}

func (c *MemoryCounter) Quota() int { return c.quota }

func (c *MemoryCounter) rollover(day time.Time) {
	day = model.MidnightUTC(day)
	if !c.day.Equal(day) {
		c.day = day
		c.used = 0
	}
}
