package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/trainops/instructor-dispatch/core/metrics"
)

// PromSink records engine events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	pairs       *prometheus.CounterVec
	quota       prometheus.Gauge
	latency     *prometheus.HistogramVec
}

// NewPromSink registers metrics on the default Prometheus registerer. The
// Prometheus server is started separately on cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_events_total",
		Help: "Total number of assignment lifecycle events",
	}, []string{"action", "state", "role"})
	pairs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distance_batch_pairs_total",
		Help: "Distance pairs processed by the batch scheduler",
	}, []string{"result"})
	quota := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "distance_quota_remaining",
		Help: "Provider calls remaining in today's quota",
	})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_latency_seconds",
		Help:    "Time spent publishing one instructor notification",
		Buckets: prometheus.DefBuckets,
	}, []string{"type", "delivered"})

	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(pairs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			pairs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(quota); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			quota = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{assignments: assignments, pairs: pairs, quota: quota, latency: latency}, nil
}

// RecordAssignmentEvents increments the counter for each lifecycle event.
func (s *PromSink) RecordAssignmentEvents(events []coremetrics.AssignmentEvent) error {
	for _, e := range events {
		role := string(e.Role)
		if role == "" {
			role = "none"
		}
		s.assignments.WithLabelValues(e.Action, string(e.State), role).Inc()
	}
	return nil
}

// RecordDistanceBatch records one batch run and the quota gauge.
func (s *PromSink) RecordDistanceBatch(res coremetrics.DistanceBatchResult) error {
	s.pairs.WithLabelValues("computed").Add(float64(res.Computed))
	s.pairs.WithLabelValues("skipped").Add(float64(res.Skipped))
	s.quota.Set(float64(res.QuotaRemaining))
	return nil
}

// RecordMessageLatency records the notification publish histogram.
func (s *PromSink) RecordMessageLatency(recs []coremetrics.MessageLatency) error {
	for _, r := range recs {
		s.latency.WithLabelValues(string(r.Type), strconv.FormatBool(r.Delivered)).Observe(r.Latency.Seconds())
	}
	return nil
}
