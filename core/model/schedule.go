package model

import "time"

// ScheduleStatus is derived from the schedule date and its assignments, never
// stored.
type ScheduleStatus int

const (
	ScheduleUnassigned ScheduleStatus = iota
	ScheduleScheduled
	ScheduleInProgress
	ScheduleCompleted
)

func (s ScheduleStatus) String() string {
	switch s {
	case ScheduleScheduled:
		return "scheduled"
	case ScheduleInProgress:
		return "inProgress"
	case ScheduleCompleted:
		return "completed"
	default:
		return "unassigned"
	}
}

// Schedule is one unit's training session on one calendar date. Schedules are
// immutable once created except for the Blocked flag.
type Schedule struct {
	ID      string
	UnitID  string
	Date    time.Time
	Blocked bool
}

// Status derives the schedule status from the current time and whether any
// assignment on it is in an accepted state.
func (s Schedule) Status(now time.Time, hasAccepted bool) ScheduleStatus {
	switch {
	case SameDay(s.Date, now) && hasAccepted:
		return ScheduleInProgress
	case s.Date.Before(MidnightUTC(now)):
		return ScheduleCompleted
	case hasAccepted:
		return ScheduleScheduled
	default:
		return ScheduleUnassigned
	}
}

// MidnightUTC truncates t to its calendar date in UTC.
func MidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar date.
func SameDay(a, b time.Time) bool {
	return MidnightUTC(a).Equal(MidnightUTC(b))
}

// ExpandPeriod expands a training period into one date per day, skipping the
// excluded dates. Used when a unit's training period is registered.
func ExpandPeriod(start, end time.Time, excluded []time.Time) []time.Time {
	start = MidnightUTC(start)
	end = MidnightUTC(end)
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		skip := false
		for _, e := range excluded {
			if SameDay(d, e) {
				skip = true
				break
			}
		}
		if !skip {
			dates = append(dates, d)
		}
	}
	return dates
}
