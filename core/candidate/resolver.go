// Package candidate resolves unit and instructor candidates for a date range.
// The resolver is read-only; it feeds the auto-assignment engine and the
// admin candidate views.
package candidate

import (
	"context"
	"fmt"
	"time"

	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/model"
)

// Directory is the read-only slice of the instructor and unit directories the
// resolver needs. Implementations paginate with offset/limit.
type Directory interface {
	SchedulesInRange(ctx context.Context, start, end time.Time, offset, limit int) ([]model.Schedule, error)
	Unit(ctx context.Context, id string) (model.Unit, error)
	InstructorsAvailableBetween(ctx context.Context, start, end time.Time, offset, limit int) ([]model.Instructor, error)
}

// AssignmentSource exposes the active assignment load the resolver enriches
// candidates with.
type AssignmentSource interface {
	ActiveInRange(ctx context.Context, start, end time.Time) ([]model.Assignment, error)
}

// DistanceSource serves known distance records.
type DistanceSource interface {
	RecordsByInstructors(ctx context.Context, instructorIDs []string) ([]model.DistanceRecord, error)
}

// Resolver computes unit and instructor candidates for a date range.
type Resolver struct {
	dir       Directory
	asgs      AssignmentSource
	distances DistanceSource
	pageSize  int
	log       logger.Logger
}

// NewResolver creates a Resolver. pageSize bounds the internal directory
// queries; values below 1 fall back to 200.
func NewResolver(dir Directory, asgs AssignmentSource, distances DistanceSource, pageSize int, log logger.Logger) (*Resolver, error) {
	if dir == nil || asgs == nil || distances == nil {
		return nil, fmt.Errorf("candidate: nil dependency provided to NewResolver")
	}
	if pageSize < 1 {
		pageSize = 200
	}
	return &Resolver{dir: dir, asgs: asgs, distances: distances, pageSize: pageSize, log: log}, nil
}

// Resolve returns all under-assigned (schedule, location) cards and all
// instructors with availability inside [start, end]. Both dates are required
// and end must not precede start.
func (r *Resolver) Resolve(ctx context.Context, start, end time.Time) (Candidates, error) {
	if start.IsZero() || end.IsZero() {
		return Candidates{}, fmt.Errorf("%w: start and end dates are required", model.ErrValidation)
	}
	start, end = model.MidnightUTC(start), model.MidnightUTC(end)
	if end.Before(start) {
		return Candidates{}, fmt.Errorf("%w: end %s precedes start %s", model.ErrValidation,
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	active, err := r.asgs.ActiveInRange(ctx, start, end)
	if err != nil {
		return Candidates{}, fmt.Errorf("candidate: load active assignments: %w", err)
	}
	bySchedule := make(map[string][]model.Assignment)
	for _, a := range active {
		bySchedule[a.ScheduleID] = append(bySchedule[a.ScheduleID], a)
	}

	units, err := r.unitCandidates(ctx, start, end, bySchedule)
	if err != nil {
		return Candidates{}, err
	}
	instructors, err := r.instructorCandidates(ctx, start, end, active)
	if err != nil {
		return Candidates{}, err
	}
	if r.log != nil {
		r.log.Debugw("candidates resolved", map[string]any{
			"units": len(units), "instructors": len(instructors),
			"start": start.Format("2006-01-02"), "end": end.Format("2006-01-02"),
		})
	}
	return Candidates{Units: units, Instructors: instructors}, nil
}

func (r *Resolver) unitCandidates(ctx context.Context, start, end time.Time, active map[string][]model.Assignment) ([]UnitCandidate, error) {
	var cards []UnitCandidate
	unitCache := make(map[string]model.Unit)
	for offset := 0; ; offset += r.pageSize {
		schedules, err := r.dir.SchedulesInRange(ctx, start, end, offset, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("candidate: load schedules: %w", err)
		}
		for _, s := range schedules {
			if s.Blocked {
				continue
			}
			unit, ok := unitCache[s.UnitID]
			if !ok {
				unit, err = r.dir.Unit(ctx, s.UnitID)
				if err != nil {
					return nil, fmt.Errorf("candidate: load unit %s: %w", s.UnitID, err)
				}
				unitCache[s.UnitID] = unit
			}
			cards = append(cards, explode(s, unit, active[s.ID])...)
		}
		if len(schedules) < r.pageSize {
			break
		}
	}
	return cards, nil
}

// explode turns one schedule into per-location cards, keeping only those with
// open slots. Units without declared locations yield a single card with a
// zero-value location. The Head role is held once per schedule, whichever
// location it sits at, so all cards of a schedule agree on MissingHead.
func explode(s model.Schedule, unit model.Unit, active []model.Assignment) []UnitCandidate {
	locations := unit.Locations
	if len(locations) == 0 {
		locations = []model.TrainingLocation{{UnitID: unit.ID}}
	}
	hasHead := false
	for _, a := range active {
		if a.Role == model.RoleHead {
			hasHead = true
			break
		}
	}
	var cards []UnitCandidate
	for _, loc := range locations {
		count := 0
		for _, a := range active {
			if a.LocationID == loc.ID {
				count++
			}
		}
		missing := unit.RequiredHeadcount() - count
		if missing <= 0 {
			continue
		}
		cards = append(cards, UnitCandidate{
			Schedule:      s,
			Unit:          unit,
			Location:      loc,
			ActiveCount:   count,
			HasActiveHead: hasHead,
			MissingTotal:  missing,
			MissingHead:   unit.RequiredHead > 0 && !hasHead,
		})
	}
	return cards
}

func (r *Resolver) instructorCandidates(ctx context.Context, start, end time.Time, active []model.Assignment) ([]InstructorCandidate, error) {
	var list []InstructorCandidate
	var ids []string
	for offset := 0; ; offset += r.pageSize {
		instructors, err := r.dir.InstructorsAvailableBetween(ctx, start, end, offset, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("candidate: load instructors: %w", err)
		}
		for _, ins := range instructors {
			c := InstructorCandidate{
				Instructor: ins,
				Booked:     make(map[string][]Booking),
				Distances:  make(map[string]model.Leg),
			}
			for _, a := range active {
				if a.InstructorID != ins.ID {
					continue
				}
				key := DayKey(a.Date)
				c.Booked[key] = append(c.Booked[key], Booking{UnitID: a.UnitID, LocationID: a.LocationID})
				c.PeriodAssignments++
			}
			list = append(list, c)
			ids = append(ids, ins.ID)
		}
		if len(instructors) < r.pageSize {
			break
		}
	}
	if len(ids) == 0 {
		return list, nil
	}

	records, err := r.distances.RecordsByInstructors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("candidate: load distance records: %w", err)
	}
	byInstructor := make(map[string][]model.DistanceRecord)
	for _, rec := range records {
		byInstructor[rec.InstructorID] = append(byInstructor[rec.InstructorID], rec)
	}
	for i := range list {
		for _, rec := range byInstructor[list[i].Instructor.ID] {
			list[i].Distances[rec.UnitID] = model.Leg{Km: rec.Km, Minutes: rec.Minutes}
		}
	}
	return list, nil
}
