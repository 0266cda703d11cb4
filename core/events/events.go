// Package events defines the concrete event types published on the internal
// event bus.
package events

import (
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
)

// AssignmentsCommitted is published after a bulk save, once per schedule
// transaction that succeeded.
type AssignmentsCommitted struct {
	ScheduleID  string
	Assignments []model.Assignment
	Time        time.Time
}

// AssignmentResponded is published when an instructor accepts or rejects.
type AssignmentResponded struct {
	Assignment model.Assignment
	Response   model.Response
	Time       time.Time
}

// AssignmentCancelled is published when an admin cancels an assignment.
type AssignmentCancelled struct {
	Assignment model.Assignment
	Time       time.Time
}

// AssignmentsPromoted is published after a confirmation batch.
type AssignmentsPromoted struct {
	Count int
	Time  time.Time
}

// OutboxEnqueued wakes the outbox dispatcher when new events were written.
type OutboxEnqueued struct {
	Count int
}

// DistanceBatchFinished is published after each distance batch run.
type DistanceBatchFinished struct {
	Computed       int
	Skipped        int
	QuotaRemaining int
	Time           time.Time
}
