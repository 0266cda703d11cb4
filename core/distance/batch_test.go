package distance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainops/instructor-dispatch/core/model"
)

var testDay = time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu           sync.Mutex
	geocodeCalls int
	routeCalls   int
	failGeocode  map[string]error
	failRoute    bool
	// failAfter makes Route fail once more than failAfter calls were made.
	failAfter int
	routeErr  error
	leg       model.Leg
}

func (p *fakeProvider) Geocode(ctx context.Context, address string) (model.Coordinates, error) {
	p.mu.Lock()
	p.geocodeCalls++
	err := p.failGeocode[address]
	p.mu.Unlock()
	if err != nil {
		return model.Coordinates{}, err
	}
	return model.Coordinates{Lat: 48.85, Lng: 2.35}, nil
}

func (p *fakeProvider) Route(ctx context.Context, _, _ model.Coordinates) (model.Leg, error) {
	p.mu.Lock()
	p.routeCalls++
	fail := p.failRoute || (p.failAfter > 0 && p.routeCalls > p.failAfter)
	err := p.routeErr
	p.mu.Unlock()
	if fail {
		if err == nil {
			err = fmt.Errorf("provider timeout")
		}
		return model.Leg{}, err
	}
	if p.leg.Km > 0 {
		return p.leg, nil
	}
	return model.Leg{Km: 10, Minutes: 15}, nil
}

func (p *fakeProvider) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.geocodeCalls, p.routeCalls
}

func coords(lat, lng float64) *model.Coordinates {
	return &model.Coordinates{Lat: lat, Lng: lng}
}

func seedPairs(store *MemoryStore, n int) {
	for i := 0; i < n; i++ {
		store.AddPair(Pair{
			InstructorID:     fmt.Sprintf("i%02d", i),
			UnitID:           "u1",
			InstructorCoords: coords(48, 2),
			UnitCoords:       coords(49, 3),
			NextScheduleDate: testDay.AddDate(0, 0, i),
		})
	}
}

func newBatch(t *testing.T, store *MemoryStore, provider Provider, quota int, cfg Config) *Batch {
	t.Helper()
	b, err := NewBatch(store, provider, NewMemoryCounter(quota), cfg, nil, nil, nil)
	require.NoError(t, err)
	b.SetClock(func() time.Time { return testDay })
	return b
}

func TestRunComputesNearestFirst(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 3)
	provider := &fakeProvider{leg: model.Leg{Km: 42, Minutes: 30}}
	b := newBatch(t, store, provider, 100, Config{})

	res, err := b.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Computed)
	assert.Equal(t, 0, res.Remaining)
	assert.Empty(t, res.Skipped)

	recs := store.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "i00", recs[0].InstructorID)
	assert.Equal(t, "i01", recs[1].InstructorID)
	assert.Equal(t, 42.0, recs[0].Km)
	assert.True(t, recs[0].ComputedAt.Equal(testDay))
}

func TestRunStopsAtQuota(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 10)
	b := newBatch(t, store, &fakeProvider{}, 5, Config{})

	res, err := b.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Computed)
	assert.Equal(t, 0, res.QuotaRemaining)
	assert.Equal(t, 5, res.Remaining)
	assert.Len(t, store.Records(), 5)
}

func TestRunNearQuotaComputesPartial(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 100)
	counter := NewMemoryCounter(100)
	for i := 0; i < 95; i++ {
		require.NoError(t, counter.TryAcquire(context.Background(), testDay))
	}
	b, err := NewBatch(store, &fakeProvider{}, counter, Config{}, nil, nil, nil)
	require.NoError(t, err)
	b.SetClock(func() time.Time { return testDay })

	res, err := b.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Computed)
	assert.Equal(t, 0, res.QuotaRemaining)
}

func TestGeocodingSpendsQuota(t *testing.T) {
	store := NewMemoryStore()
	store.AddPair(Pair{
		InstructorID:      "i1",
		UnitID:            "u1",
		InstructorAddress: "1 rue de la Paix",
		UnitAddress:       "2 avenue Foch",
		NextScheduleDate:  testDay,
	})
	provider := &fakeProvider{}
	counter := NewMemoryCounter(100)
	b, err := NewBatch(store, provider, counter, Config{}, nil, nil, nil)
	require.NoError(t, err)
	b.SetClock(func() time.Time { return testDay })

	res, err := b.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Computed)

	// Two geocodes plus one route.
	used, err := counter.Used(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	g, r := provider.calls()
	assert.Equal(t, 2, g)
	assert.Equal(t, 1, r)
}

func TestGeocodeResultPersistedBeforeLaterFailure(t *testing.T) {
	store := NewMemoryStore()
	store.AddPair(Pair{
		InstructorID:      "i1",
		UnitID:            "u1",
		InstructorAddress: "1 rue de la Paix",
		UnitAddress:       "2 avenue Foch",
		NextScheduleDate:  testDay,
	})
	provider := &fakeProvider{failRoute: true}
	b := newBatch(t, store, provider, 100, Config{OutageThreshold: 10})

	res, err := b.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Computed)
	require.Len(t, res.Skipped, 1)

	// The coordinates survived the route failure; a retry only pays for the
	// route call.
	pair, err := store.PairByID(context.Background(), "i1", "u1")
	require.NoError(t, err)
	assert.NotNil(t, pair.InstructorCoords)
	assert.NotNil(t, pair.UnitCoords)

	provider.mu.Lock()
	provider.failRoute = false
	provider.mu.Unlock()
	res, err = b.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Computed)
	g, _ := provider.calls()
	assert.Equal(t, 2, g)
}

func TestRunSkipsFailedPairAndContinues(t *testing.T) {
	store := NewMemoryStore()
	store.AddPair(Pair{
		InstructorID:      "i-bad",
		UnitID:            "u1",
		InstructorAddress: "unknown address",
		UnitCoords:        coords(49, 3),
		NextScheduleDate:  testDay,
	})
	store.AddPair(Pair{
		InstructorID:     "i-good",
		UnitID:           "u1",
		InstructorCoords: coords(48, 2),
		UnitCoords:       coords(49, 3),
		NextScheduleDate: testDay.AddDate(0, 0, 1),
	})
	provider := &fakeProvider{failGeocode: map[string]error{"unknown address": fmt.Errorf("no match")}}
	b := newBatch(t, store, provider, 100, Config{})

	res, err := b.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Computed)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "i-bad", res.Skipped[0].InstructorID)
	assert.Contains(t, res.Skipped[0].Reason, "no match")
}

func TestRunAbortsOnProviderOutage(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 10)
	provider := &fakeProvider{failRoute: true}
	b := newBatch(t, store, provider, 100, Config{OutageThreshold: 3})

	res, err := b.Run(context.Background(), 10)
	require.ErrorIs(t, err, model.ErrProviderUnavailable)
	assert.Equal(t, 0, res.Computed)
	assert.Len(t, res.Skipped, 3)
	assert.Equal(t, 7, res.Remaining)
}

func TestRunSuccessesDisarmOutageAbort(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 6)
	// First pair succeeds, then the provider starts failing. The run skips the
	// rest but does not treat it as an outage.
	provider := &fakeProvider{failAfter: 1}
	b := newBatch(t, store, provider, 100, Config{OutageThreshold: 3})

	res, err := b.Run(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Computed)
	assert.Len(t, res.Skipped, 5)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 5)
	b := newBatch(t, store, &fakeProvider{}, 100, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := b.Run(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Computed)
	assert.Equal(t, 5, res.Remaining)
}

func TestComputePairOnDemand(t *testing.T) {
	store := NewMemoryStore()
	store.AddPair(Pair{
		InstructorID:     "i1",
		UnitID:           "u1",
		InstructorCoords: coords(48, 2),
		UnitCoords:       coords(49, 3),
		NextScheduleDate: testDay,
	})
	b := newBatch(t, store, &fakeProvider{leg: model.Leg{Km: 5, Minutes: 8}}, 100, Config{})

	rec, err := b.ComputePair(context.Background(), "i1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, rec.Km)
	assert.Len(t, store.Records(), 1)

	_, err = b.ComputePair(context.Background(), "i1", "u-missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestComputePairQuotaExceeded(t *testing.T) {
	store := NewMemoryStore()
	store.AddPair(Pair{
		InstructorID:     "i1",
		UnitID:           "u1",
		InstructorCoords: coords(48, 2),
		UnitCoords:       coords(49, 3),
		NextScheduleDate: testDay,
	})
	b := newBatch(t, store, &fakeProvider{}, 0, Config{})

	_, err := b.ComputePair(context.Background(), "i1", "u1")
	assert.ErrorIs(t, err, model.ErrQuotaExceeded)
}

func TestUsage(t *testing.T) {
	store := NewMemoryStore()
	seedPairs(store, 2)
	b := newBatch(t, store, &fakeProvider{}, 50, Config{})

	_, err := b.Run(context.Background(), 2)
	require.NoError(t, err)
	used, quota, err := b.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, used)
	assert.Equal(t, 50, quota)
}

func TestMemoryCounterRollover(t *testing.T) {
	c := NewMemoryCounter(1)
	require.NoError(t, c.TryAcquire(context.Background(), testDay))
	assert.ErrorIs(t, c.TryAcquire(context.Background(), testDay), model.ErrQuotaExceeded)
	// A new day resets the budget.
	require.NoError(t, c.TryAcquire(context.Background(), testDay.AddDate(0, 0, 1)))
}
