package candidate

import (
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
)

// UnitCandidate is one (schedule, training location) pair still lacking its
// required instructor headcount. A unit with N locations explodes into N
// cards, each carrying the unit's shared date and contact fields.
type UnitCandidate struct {
	Schedule model.Schedule
	Unit     model.Unit
	Location model.TrainingLocation

	// ActiveCount is the active assignment load at this location.
	// HasActiveHead reports whether the schedule already has an active Head at
	// any of its locations; the Head role is held once per schedule.
	ActiveCount   int
	HasActiveHead bool

	// MissingTotal is the number of open slots at this location, MissingHead
	// whether the schedule as a whole still needs its Head.
	MissingTotal int
	MissingHead  bool
}

// InstructorCandidate is an instructor with declared availability inside the
// requested range, enriched with everything the matching engine ranks on.
type InstructorCandidate struct {
	Instructor model.Instructor

	// Booked maps day keys (see DayKey) to the active assignments the
	// instructor already holds that day.
	Booked map[string][]Booking

	// PeriodAssignments counts active assignments inside the requested range,
	// used as the rotation-fairness tie break.
	PeriodAssignments int

	// Distances holds known travel estimates keyed by unit ID. Units absent
	// from the map have no computed distance yet.
	Distances map[string]model.Leg
}

// Booking is an existing active claim used for double-booking checks.
type Booking struct {
	UnitID     string
	LocationID string
}

// DayKey renders a date as the map key used for per-day booking lookups.
func DayKey(t time.Time) string { return model.MidnightUTC(t).Format("2006-01-02") }

// Candidates bundles both resolver outputs.
type Candidates struct {
	Units       []UnitCandidate
	Instructors []InstructorCandidate
}
