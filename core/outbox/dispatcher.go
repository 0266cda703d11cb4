package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/metrics"
	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/internal/eventbus"
)

// MessageSender delivers one notification to the message subsystem.
type MessageSender interface {
	Send(ctx context.Context, recipientID string, msgType model.Classification, payload []byte) error
}

// Dispatcher drains the outbox on a fixed interval and whenever the event bus
// signals newly enqueued events. Send failures are logged and retried on the
// next drain; they are never surfaced to the assignment flow.
type Dispatcher struct {
	store     Store
	sender    MessageSender
	bus       eventbus.EventBus
	log       logger.Logger
	sink      metrics.MessageLatencyRecorder
	interval  time.Duration
	batchSize int
}

// NewDispatcher creates a Dispatcher. A zero interval defaults to 30 seconds.
func NewDispatcher(store Store, sender MessageSender, bus eventbus.EventBus, log logger.Logger, sink metrics.MessageLatencyRecorder, interval time.Duration, batchSize int) (*Dispatcher, error) {
	if store == nil || sender == nil {
		return nil, fmt.Errorf("outbox: nil store or sender provided to NewDispatcher")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		bus:       bus,
		log:       log,
		sink:      sink,
		interval:  interval,
		batchSize: batchSize,
	}, nil
}

// Run drains until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var wake <-chan eventbus.Event
	if d.bus != nil {
		wake = d.bus.Subscribe()
		defer d.bus.Unsubscribe(wake)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DrainOnce(ctx)
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			d.DrainOnce(ctx)
		}
	}
}

// DrainOnce sends one batch of pending events and reports how many were
// delivered and how many failed. Failed events stay pending and are retried
// on a later drain rather than in a tight loop.
func (d *Dispatcher) DrainOnce(ctx context.Context) (sent, failed int) {
	events, err := d.store.Pending(ctx, d.batchSize)
	if err != nil {
		if d.log != nil {
			d.log.Errorf("outbox: load pending events: %v", err)
		}
		return 0, 0
	}
	var latencies []metrics.MessageLatency
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		err := d.sender.Send(ctx, ev.RecipientID, ev.Type, ev.Payload)
		latencies = append(latencies, metrics.MessageLatency{
			RecipientID: ev.RecipientID,
			Type:        ev.Type,
			Delivered:   err == nil,
			Latency:     time.Since(start),
		})
		if err != nil {
			failed++
			if d.log != nil {
				d.log.Warnf("outbox: send %s to %s failed: %v", ev.ID, ev.RecipientID, err)
			}
			if merr := d.store.MarkFailed(ctx, ev.ID, err.Error()); merr != nil && d.log != nil {
				d.log.Errorf("outbox: mark failed %s: %v", ev.ID, merr)
			}
			continue
		}
		if merr := d.store.MarkDispatched(ctx, ev.ID, time.Now().UTC()); merr != nil {
			if d.log != nil {
				d.log.Errorf("outbox: mark dispatched %s: %v", ev.ID, merr)
			}
			failed++
			continue
		}
		sent++
	}
	d.record(latencies)
	return sent, failed
}

func (d *Dispatcher) record(recs []metrics.MessageLatency) {
	if d.sink == nil || len(recs) == 0 {
		return
	}
	if err := d.sink.RecordMessageLatency(recs); err != nil && d.log != nil {
		d.log.Errorf("outbox: latency metrics: %v", err)
	}
}
