package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
)

// MemoryDirectory is an in-memory instructor/unit/schedule directory for
// local runs and tests.
type MemoryDirectory struct {
	mu          sync.Mutex
	instructors map[string]model.Instructor
	units       map[string]model.Unit
	schedules   map[string]model.Schedule
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		instructors: make(map[string]model.Instructor),
		units:       make(map[string]model.Unit),
		schedules:   make(map[string]model.Schedule),
	}
}

// AddInstructor seeds one instructor.
func (d *MemoryDirectory) AddInstructor(i model.Instructor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instructors[i.ID] = i
}

// AddUnit seeds one unit.
func (d *MemoryDirectory) AddUnit(u model.Unit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.units[u.ID] = u
}

// AddSchedule seeds one schedule.
func (d *MemoryDirectory) AddSchedule(s model.Schedule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s.Date = model.MidnightUTC(s.Date)
	d.schedules[s.ID] = s
}

func (d *MemoryDirectory) SchedulesInRange(_ context.Context, start, end time.Time, offset, limit int) ([]model.Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []model.Schedule
	for _, s := range d.schedules {
		if s.Date.Before(model.MidnightUTC(start)) || s.Date.After(model.MidnightUTC(end)) {
			continue
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].ID < all[j].ID
	})
	return page(all, offset, limit), nil
}

func (d *MemoryDirectory) Schedule(_ context.Context, id string) (model.Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.schedules[id]
	if !ok {
		return model.Schedule{}, fmt.Errorf("%w: schedule %s", model.ErrNotFound, id)
	}
	return s, nil
}

func (d *MemoryDirectory) Unit(_ context.Context, id string) (model.Unit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.units[id]
	if !ok {
		return model.Unit{}, fmt.Errorf("%w: unit %s", model.ErrNotFound, id)
	}
	return u, nil
}

func (d *MemoryDirectory) InstructorsAvailableBetween(_ context.Context, start, end time.Time, offset, limit int) ([]model.Instructor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []model.Instructor
	for _, ins := range d.instructors {
		for _, day := range ins.Availability {
			if !day.Before(model.MidnightUTC(start)) && !day.After(model.MidnightUTC(end)) {
				all = append(all, ins)
				break
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, offset, limit), nil
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
