// Package outbox implements the durable message trigger: assignment events
// are written transactionally with the state change, and a separate
// dispatcher drains them into the notification subsystem. Message failures
// never roll back assignment state.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trainops/instructor-dispatch/core/model"
)

// Event is one durable notification record addressed to an instructor. Type
// mirrors the assignment classification: Temporary for the initial proposal
// message, Confirmed for the confirmation message.
type Event struct {
	ID           string
	AssignmentID string
	RecipientID  string
	Type         model.Classification
	Payload      json.RawMessage
	Attempts     int
	CreatedAt    time.Time
	DispatchedAt *time.Time
	LastError    string
}

// payload is the wire body sent to the message subsystem.
type payload struct {
	ScheduleID string     `json:"scheduleId"`
	UnitID     string     `json:"unitId"`
	LocationID string     `json:"locationId,omitempty"`
	Date       time.Time  `json:"date"`
	Role       model.Role `json:"role,omitempty"`
}

// NewEvent builds the outbox event for one assignment and message type.
func NewEvent(a model.Assignment, t model.Classification, now time.Time) Event {
	body, _ := json.Marshal(payload{
		ScheduleID: a.ScheduleID,
		UnitID:     a.UnitID,
		LocationID: a.LocationID,
		Date:       a.Date,
		Role:       a.Role,
	})
	return Event{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		RecipientID:  a.InstructorID,
		Type:         t,
		Payload:      body,
		CreatedAt:    now,
	}
}

// Store persists outbox events. Enqueue is used by flows that do not share a
// transaction with an assignment write; the assignment store writes events
// itself inside its transactions.
type Store interface {
	Enqueue(ctx context.Context, events []Event) error
	// Pending returns undispatched events, oldest first.
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	// MarkFailed increments the attempt counter and records the error.
	MarkFailed(ctx context.Context, id string, lastError string) error
}
