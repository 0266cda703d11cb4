package assignment

import (
	"context"
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/core/outbox"
)

// Store is the authoritative persistence port for assignment records. All
// state transitions are conditional updates, never read-then-write, so they
// stay correct under concurrent instructor and admin actions.
type Store interface {
	// Latest returns the most recent assignment for the pair, regardless of
	// state. Returns model.ErrNotFound when none exists.
	Latest(ctx context.Context, scheduleID, instructorID string) (model.Assignment, error)

	// ActiveInRange lists active (Pending or Accepted) assignments whose
	// schedule date falls inside [start, end].
	ActiveInRange(ctx context.Context, start, end time.Time) ([]model.Assignment, error)

	// CreateBatch atomically inserts one schedule's assignments together with
	// their outbox events. An invariant violation (duplicate active pair,
	// cross-unit double booking, second active Head) fails the whole batch.
	CreateBatch(ctx context.Context, assignments []model.Assignment, events []outbox.Event) error

	// Transition updates the state only if the stored state equals from.
	// A lost race returns model.ErrInvalidStateTransition.
	Transition(ctx context.Context, id string, from, to model.AssignmentState, at time.Time) (model.Assignment, error)

	// PromoteTemporary flips Accepted+Temporary assignments with a schedule
	// date on or before cutoff to Confirmed, enqueueing their confirmation
	// events in the same transaction. Assignment state is untouched.
	PromoteTemporary(ctx context.Context, cutoff, now time.Time) ([]model.Assignment, error)

	// AcceptedWithoutConfirmedMessage returns accepted assignments lacking a
	// dispatched confirmation message. Used by the reconciliation audit.
	AcceptedWithoutConfirmedMessage(ctx context.Context) ([]model.Assignment, error)
}
