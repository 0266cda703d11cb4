package model

import (
	"fmt"
	"time"
)

// AssignmentState is the lifecycle state of an assignment.
// Pending -> Accepted | Rejected; Accepted -> Cancelled.
// Rejected and Cancelled are terminal for the record; a new assignment is
// created to re-propose.
type AssignmentState string

const (
	StatePending   AssignmentState = "Pending"
	StateAccepted  AssignmentState = "Accepted"
	StateRejected  AssignmentState = "Rejected"
	StateCancelled AssignmentState = "Cancelled"
)

// Active reports whether the state still claims the schedule. Rejected and
// cancelled assignments are retained for statistics but no longer count
// against headcounts or double-booking checks.
func (s AssignmentState) Active() bool {
	return s == StatePending || s == StateAccepted
}

// Classification distinguishes a proposed assignment from a finalized one.
type Classification string

const (
	ClassTemporary Classification = "Temporary"
	ClassConfirmed Classification = "Confirmed"
)

// Role of the instructor on the schedule. Empty means no designated role.
type Role string

const (
	RoleHead Role = "Head"
	RoleCo   Role = "Co"
	RoleNone Role = ""
)

// Response is an instructor's answer to a proposed assignment.
type Response string

const (
	ResponseAccept Response = "Accept"
	ResponseReject Response = "Reject"
)

// StateFor maps a response to the resulting assignment state.
func (r Response) StateFor() (AssignmentState, error) {
	switch r {
	case ResponseAccept:
		return StateAccepted, nil
	case ResponseReject:
		return StateRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown response %q", ErrValidation, string(r))
	}
}

// Assignment links one instructor to one schedule, optionally to a specific
// training location within the unit. Records are never physically deleted.
type Assignment struct {
	ID             string
	ScheduleID     string
	InstructorID   string
	LocationID     string
	UnitID         string
	Date           time.Time
	Role           Role
	State          AssignmentState
	Classification Classification
	CreatedAt      time.Time
	RespondedAt    *time.Time
}

// Active reports whether the assignment still claims its schedule.
func (a Assignment) Active() bool { return a.State.Active() }
