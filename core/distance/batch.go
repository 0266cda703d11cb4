package distance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trainops/instructor-dispatch/core/events"
	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/metrics"
	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/internal/eventbus"
)

// Config holds the batch scheduler settings.
type Config struct {
	// DailyQuota is the provider-side daily call limit.
	DailyQuota int `json:"daily_quota"`
	// DefaultBatchLimit bounds one run when the caller passes no limit.
	DefaultBatchLimit int `json:"default_batch_limit"`
	// CallTimeoutSeconds is the per-provider-call timeout.
	CallTimeoutSeconds int `json:"call_timeout_seconds"`
	// OutageThreshold is how many consecutive failures with zero successes
	// are treated as a systemic provider outage.
	OutageThreshold int `json:"outage_threshold"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DailyQuota <= 0 {
		c.DailyQuota = 1000
	}
	if c.DefaultBatchLimit <= 0 {
		c.DefaultBatchLimit = 200
	}
	if c.CallTimeoutSeconds <= 0 {
		c.CallTimeoutSeconds = 10
	}
	if c.OutageThreshold <= 0 {
		c.OutageThreshold = 5
	}
}

// Skip records one pair the batch could not compute, with the reason.
type Skip struct {
	InstructorID string `json:"instructorId"`
	UnitID       string `json:"unitId"`
	Reason       string `json:"reason"`
}

// BatchResult is the partial-completion summary of one run.
type BatchResult struct {
	Computed       int    `json:"computed"`
	Skipped        []Skip `json:"skipped"`
	Remaining      int    `json:"remaining"`
	QuotaRemaining int    `json:"quotaRemaining"`
}

// Batch computes missing distance pairs under the daily quota.
type Batch struct {
	store    Store
	provider Provider
	counter  UsageCounter
	cfg      Config
	bus      eventbus.EventBus
	sink     metrics.Sink
	log      logger.Logger
	now      func() time.Time
}

// NewBatch creates a Batch scheduler.
func NewBatch(store Store, provider Provider, counter UsageCounter, cfg Config, bus eventbus.EventBus, sink metrics.Sink, log logger.Logger) (*Batch, error) {
	if store == nil || provider == nil || counter == nil {
		return nil, fmt.Errorf("distance: nil dependency provided to NewBatch")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Batch{
		store:    store,
		provider: provider,
		counter:  counter,
		cfg:      cfg,
		bus:      bus,
		sink:     sink,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the time source. Tests only.
func (b *Batch) SetClock(now func() time.Time) { b.now = now }

// Run computes up to limit missing pairs, nearest upcoming schedules first.
// The limit bounds pairs attempted, not provider calls: a pair with unknown
// coordinates spends up to three quota units (two geocodes and the route), so
// a run can exhaust the quota after fewer pairs than the remaining quota
// suggests. Quota exhaustion stops the run early with a partial result, not
// an error.
// Per-pair provider errors are recorded as skips; only a systemic outage
// (every attempt failed, nothing computed) aborts with ErrProviderUnavailable.
// Cancellation is checked between pairs so an operator stop finishes the
// in-flight pair and exits with the counter consistent.
func (b *Batch) Run(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = b.cfg.DefaultBatchLimit
	}
	pairs, err := b.store.MissingPairs(ctx, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("distance: load missing pairs: %w", err)
	}

	var res BatchResult
	attempted := 0
	for _, p := range pairs {
		if ctx.Err() != nil {
			res.Remaining = len(pairs) - attempted
			b.finish(&res)
			return res, ctx.Err()
		}
		rec, err := b.compute(ctx, p)
		attempted++
		if errors.Is(err, model.ErrQuotaExceeded) {
			attempted--
			if b.log != nil {
				b.log.Infof("distance batch stopped: daily quota spent after %d pairs", res.Computed)
			}
			break
		}
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{InstructorID: p.InstructorID, UnitID: p.UnitID, Reason: err.Error()})
			if b.log != nil {
				b.log.Warnf("distance pair (%s, %s) skipped: %v", p.InstructorID, p.UnitID, err)
			}
			if res.Computed == 0 && len(res.Skipped) >= b.cfg.OutageThreshold {
				res.Remaining = len(pairs) - attempted
				b.finish(&res)
				return res, fmt.Errorf("%w: %d consecutive failures", model.ErrProviderUnavailable, len(res.Skipped))
			}
			continue
		}
		if err := b.store.SaveRecord(ctx, rec); err != nil {
			res.Skipped = append(res.Skipped, Skip{InstructorID: p.InstructorID, UnitID: p.UnitID, Reason: err.Error()})
			continue
		}
		res.Computed++
	}
	res.Remaining = len(pairs) - attempted
	b.finish(&res)
	return res, nil
}

// ComputePair bypasses batch ordering for an immediate answer. It spends the
// same quota and fails with ErrQuotaExceeded when today's quota is gone.
func (b *Batch) ComputePair(ctx context.Context, instructorID, unitID string) (model.DistanceRecord, error) {
	pair, err := b.store.PairByID(ctx, instructorID, unitID)
	if err != nil {
		return model.DistanceRecord{}, err
	}
	rec, err := b.compute(ctx, pair)
	if err != nil {
		return model.DistanceRecord{}, err
	}
	if err := b.store.SaveRecord(ctx, rec); err != nil {
		return model.DistanceRecord{}, fmt.Errorf("distance: save record: %w", err)
	}
	return rec, nil
}

// Usage reports today's provider usage against the quota.
func (b *Batch) Usage(ctx context.Context) (used, quota int, err error) {
	used, err = b.counter.Used(ctx, b.now())
	return used, b.counter.Quota(), err
}

// compute resolves missing coordinates and the route for one pair. Every
// provider call reserves quota first; geocoding results are persisted so a
// retry does not pay for them twice.
func (b *Batch) compute(ctx context.Context, p Pair) (model.DistanceRecord, error) {
	origin := p.InstructorCoords
	if origin == nil {
		c, err := b.geocode(ctx, p.InstructorAddress)
		if err != nil {
			return model.DistanceRecord{}, err
		}
		if err := b.store.SaveInstructorCoords(ctx, p.InstructorID, c); err != nil && b.log != nil {
			b.log.Warnf("distance: persist instructor coords %s: %v", p.InstructorID, err)
		}
		origin = &c
	}
	dest := p.UnitCoords
	if dest == nil {
		c, err := b.geocode(ctx, p.UnitAddress)
		if err != nil {
			return model.DistanceRecord{}, err
		}
		if err := b.store.SaveUnitCoords(ctx, p.UnitID, c); err != nil && b.log != nil {
			b.log.Warnf("distance: persist unit coords %s: %v", p.UnitID, err)
		}
		dest = &c
	}

	if err := b.counter.TryAcquire(ctx, b.now()); err != nil {
		return model.DistanceRecord{}, err
	}
	callCtx, cancel := b.callContext(ctx)
	leg, err := b.provider.Route(callCtx, *origin, *dest)
	cancel()
	if err != nil {
		return model.DistanceRecord{}, fmt.Errorf("route: %w", err)
	}
	return model.DistanceRecord{
		InstructorID: p.InstructorID,
		UnitID:       p.UnitID,
		Km:           leg.Km,
		Minutes:      leg.Minutes,
		ComputedAt:   b.now(),
	}, nil
}

func (b *Batch) geocode(ctx context.Context, address string) (model.Coordinates, error) {
	if address == "" {
		return model.Coordinates{}, fmt.Errorf("address is empty")
	}
	if err := b.counter.TryAcquire(ctx, b.now()); err != nil {
		return model.Coordinates{}, err
	}
	callCtx, cancel := b.callContext(ctx)
	defer cancel()
	c, err := b.provider.Geocode(callCtx, address)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	return c, nil
}

func (b *Batch) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(b.cfg.CallTimeoutSeconds)*time.Second)
}

func (b *Batch) finish(res *BatchResult) {
	used, err := b.counter.Used(context.Background(), b.now())
	if err == nil {
		res.QuotaRemaining = b.counter.Quota() - used
		if res.QuotaRemaining < 0 {
			res.QuotaRemaining = 0
		}
	}
	if b.bus != nil {
		b.bus.Publish(events.DistanceBatchFinished{
			Computed:       res.Computed,
			Skipped:        len(res.Skipped),
			QuotaRemaining: res.QuotaRemaining,
			Time:           b.now(),
		})
	}
	if err := b.sink.RecordDistanceBatch(metrics.DistanceBatchResult{
		Computed:       res.Computed,
		Skipped:        len(res.Skipped),
		QuotaRemaining: res.QuotaRemaining,
		Time:           b.now(),
	}); err != nil && b.log != nil {
		b.log.Errorf("distance metrics: %v", err)
	}
}
