package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/core/outbox"
)

// MemoryStore is an in-memory Store and outbox.Store used by tests and local
// runs. The single mutex makes every transition an atomic compare-and-set,
// matching the SQL store's conditional updates.
type MemoryStore struct {
	mu          sync.Mutex
	assignments map[string]*model.Assignment
	order       []string
	events      map[string]*outbox.Event
	eventOrder  []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[string]*model.Assignment),
		events:      make(map[string]*outbox.Event),
	}
}

var _ Store = (*MemoryStore)(nil)
var _ outbox.Store = (*MemoryStore)(nil)

func (m *MemoryStore) Latest(_ context.Context, scheduleID, instructorID string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Assignment
	for _, id := range m.order {
		a := m.assignments[id]
		if a.ScheduleID == scheduleID && a.InstructorID == instructorID {
			found = a
		}
	}
	if found == nil {
		return model.Assignment{}, fmt.Errorf("%w: assignment for schedule %s instructor %s", model.ErrNotFound, scheduleID, instructorID)
	}
	return *found, nil
}

func (m *MemoryStore) ActiveInRange(_ context.Context, start, end time.Time) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Assignment
	for _, id := range m.order {
		a := m.assignments[id]
		if !a.Active() {
			continue
		}
		if a.Date.Before(model.MidnightUTC(start)) || a.Date.After(model.MidnightUTC(end)) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *MemoryStore) CreateBatch(_ context.Context, assignments []model.Assignment, events []outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Validate the whole batch before touching anything: the batch is
	// all-or-nothing for its schedule.
	for i, a := range assignments {
		for _, id := range m.order {
			ex := m.assignments[id]
			if !ex.Active() {
				continue
			}
			if ex.ScheduleID == a.ScheduleID && ex.InstructorID == a.InstructorID {
				return fmt.Errorf("%w: instructor %s already has an active assignment on schedule %s",
					model.ErrValidation, a.InstructorID, a.ScheduleID)
			}
			if ex.InstructorID == a.InstructorID && model.SameDay(ex.Date, a.Date) && ex.UnitID != a.UnitID {
				return fmt.Errorf("%w: instructor %s is already booked at unit %s on %s",
					model.ErrValidation, a.InstructorID, ex.UnitID, a.Date.Format("2006-01-02"))
			}
			if a.Role == model.RoleHead && ex.ScheduleID == a.ScheduleID && ex.Role == model.RoleHead {
				return fmt.Errorf("%w: schedule %s already has an active Head", model.ErrValidation, a.ScheduleID)
			}
		}
		for _, other := range assignments[:i] {
			if other.InstructorID == a.InstructorID && other.ScheduleID == a.ScheduleID && other.LocationID == a.LocationID {
				return fmt.Errorf("%w: duplicate proposal for instructor %s", model.ErrValidation, a.InstructorID)
			}
			if a.Role == model.RoleHead && other.Role == model.RoleHead && other.ScheduleID == a.ScheduleID {
				return fmt.Errorf("%w: schedule %s proposed with two Heads", model.ErrValidation, a.ScheduleID)
			}
		}
	}
	for _, a := range assignments {
		cp := a
		m.assignments[a.ID] = &cp
		m.order = append(m.order, a.ID)
	}
	m.enqueueLocked(events)
	return nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, from, to model.AssignmentState, at time.Time) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return model.Assignment{}, fmt.Errorf("%w: assignment %s", model.ErrNotFound, id)
	}
	if a.State != from {
		return model.Assignment{}, fmt.Errorf("%w: assignment %s is %s, expected %s",
			model.ErrInvalidStateTransition, id, a.State, from)
	}
	a.State = to
	t := at
	a.RespondedAt = &t
	return *a, nil
}

func (m *MemoryStore) PromoteTemporary(_ context.Context, cutoff, now time.Time) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var promoted []model.Assignment
	var events []outbox.Event
	for _, id := range m.order {
		a := m.assignments[id]
		if a.State != model.StateAccepted || a.Classification != model.ClassTemporary {
			continue
		}
		if a.Date.After(cutoff) {
			continue
		}
		a.Classification = model.ClassConfirmed
		promoted = append(promoted, *a)
		events = append(events, outbox.NewEvent(*a, model.ClassConfirmed, now))
	}
	m.enqueueLocked(events)
	return promoted, nil
}

func (m *MemoryStore) AcceptedWithoutConfirmedMessage(_ context.Context) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	confirmed := make(map[string]bool)
	for _, id := range m.eventOrder {
		ev := m.events[id]
		if ev.Type == model.ClassConfirmed && ev.DispatchedAt != nil {
			confirmed[ev.AssignmentID] = true
		}
	}
	var out []model.Assignment
	for _, id := range m.order {
		a := m.assignments[id]
		if a.State == model.StateAccepted && !confirmed[a.ID] {
			out = append(out, *a)
		}
	}
	return out, nil
}

// Enqueue implements outbox.Store.
func (m *MemoryStore) Enqueue(_ context.Context, events []outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueueLocked(events)
	return nil
}

func (m *MemoryStore) enqueueLocked(events []outbox.Event) {
	for _, ev := range events {
		cp := ev
		m.events[ev.ID] = &cp
		m.eventOrder = append(m.eventOrder, ev.ID)
	}
}

// Pending implements outbox.Store, oldest first.
func (m *MemoryStore) Pending(_ context.Context, limit int) ([]outbox.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Event
	for _, id := range m.eventOrder {
		ev := m.events[id]
		if ev.DispatchedAt != nil {
			continue
		}
		out = append(out, *ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkDispatched(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %s", model.ErrNotFound, id)
	}
	t := at
	ev.DispatchedAt = &t
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %s", model.ErrNotFound, id)
	}
	ev.Attempts++
	ev.LastError = lastError
	return nil
}

// Events returns a snapshot of all outbox events. Tests only.
func (m *MemoryStore) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Event, 0, len(m.eventOrder))
	for _, id := range m.eventOrder {
		out = append(out, *m.events[id])
	}
	return out
}

// All returns a snapshot of all assignments. Tests only.
func (m *MemoryStore) All() []model.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Assignment, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.assignments[id])
	}
	return out
}
