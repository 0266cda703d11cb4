package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/trainops/instructor-dispatch/core/metrics"
	"github.com/trainops/instructor-dispatch/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)

	err = sink.RecordAssignmentEvents([]coremetrics.AssignmentEvent{
		{ScheduleID: "s1", InstructorID: "i1", Role: model.RoleHead, State: model.StatePending, Action: "committed"},
		{ScheduleID: "s1", InstructorID: "i2", State: model.StatePending, Action: "committed"},
	})
	require.NoError(t, err)

	err = sink.RecordDistanceBatch(coremetrics.DistanceBatchResult{Computed: 3, Skipped: 1, QuotaRemaining: 42})
	require.NoError(t, err)

	err = sink.RecordMessageLatency([]coremetrics.MessageLatency{
		{RecipientID: "i1", Type: model.ClassTemporary, Delivered: true, Latency: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(sink.assignments.WithLabelValues("committed", "Pending", "Head")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.assignments.WithLabelValues("committed", "Pending", "none")))
	assert.Equal(t, float64(3), testutil.ToFloat64(sink.pairs.WithLabelValues("computed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.pairs.WithLabelValues("skipped")))
	assert.Equal(t, float64(42), testutil.ToFloat64(sink.quota))
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	_, err = NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	assert.NoError(t, err)
}
