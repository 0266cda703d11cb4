package metrics

import (
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
)

// AssignmentEvent represents one assignment lifecycle event to be recorded.
type AssignmentEvent struct {
	ScheduleID   string
	InstructorID string
	Role         model.Role
	State        model.AssignmentState
	Action       string // proposed | committed | responded | cancelled | promoted
	Time         time.Time
}

// DistanceBatchResult summarizes one distance batch run.
type DistanceBatchResult struct {
	Computed       int
	Skipped        int
	QuotaRemaining int
	Time           time.Time
}

// MessageLatency captures the latency of one notification publish.
type MessageLatency struct {
	RecipientID string
	Type        model.Classification
	Delivered   bool
	Latency     time.Duration
}

// Sink records engine events for observability purposes.
type Sink interface {
	RecordAssignmentEvents(events []AssignmentEvent) error
	RecordDistanceBatch(res DistanceBatchResult) error
}

// MessageLatencyRecorder is implemented by sinks that track notification
// publish latency.
type MessageLatencyRecorder interface {
	RecordMessageLatency(recs []MessageLatency) error
}

// NopSink discards all records. Used when metrics are disabled.
type NopSink struct{}

func (NopSink) RecordAssignmentEvents([]AssignmentEvent) error { return nil }
func (NopSink) RecordDistanceBatch(DistanceBatchResult) error  { return nil }

// Config defines settings for the metrics endpoint.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = "9090"
	}
}
