package model

import "time"

// Proposal is a proposed (instructor, schedule, role) tuple produced by the
// auto-assignment engine. Nothing is persisted until an explicit bulk save;
// the same DTO feeds both the preview response and the commit request so the
// two phases cannot drift.
type Proposal struct {
	ScheduleID   string    `json:"scheduleId"`
	UnitID       string    `json:"unitId"`
	LocationID   string    `json:"locationId,omitempty"`
	InstructorID string    `json:"instructorId"`
	Date         time.Time `json:"date"`
	Role         Role      `json:"role,omitempty"`
}
