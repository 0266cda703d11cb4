package candidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainops/instructor-dispatch/core/model"
)

var (
	day1 = time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)
)

type stubDirectory struct {
	schedules   []model.Schedule
	units       map[string]model.Unit
	instructors []model.Instructor
}

func (d *stubDirectory) SchedulesInRange(_ context.Context, start, end time.Time, offset, limit int) ([]model.Schedule, error) {
	var in []model.Schedule
	for _, s := range d.schedules {
		if !s.Date.Before(start) && !s.Date.After(end) {
			in = append(in, s)
		}
	}
	return page(in, offset, limit), nil
}

func (d *stubDirectory) Unit(_ context.Context, id string) (model.Unit, error) {
	return d.units[id], nil
}

func (d *stubDirectory) InstructorsAvailableBetween(_ context.Context, _, _ time.Time, offset, limit int) ([]model.Instructor, error) {
	return page(d.instructors, offset, limit), nil
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

type stubAssignments struct{ active []model.Assignment }

func (s *stubAssignments) ActiveInRange(_ context.Context, _, _ time.Time) ([]model.Assignment, error) {
	return s.active, nil
}

type stubDistances struct{ records []model.DistanceRecord }

func (s *stubDistances) RecordsByInstructors(_ context.Context, _ []string) ([]model.DistanceRecord, error) {
	return s.records, nil
}

func newResolver(t *testing.T, dir *stubDirectory, asgs *stubAssignments, dists *stubDistances, pageSize int) *Resolver {
	t.Helper()
	if asgs == nil {
		asgs = &stubAssignments{}
	}
	if dists == nil {
		dists = &stubDistances{}
	}
	r, err := NewResolver(dir, asgs, dists, pageSize, nil)
	require.NoError(t, err)
	return r
}

func TestResolveValidatesDates(t *testing.T) {
	r := newResolver(t, &stubDirectory{}, nil, nil, 0)

	_, err := r.Resolve(context.Background(), time.Time{}, day1)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = r.Resolve(context.Background(), day2, day1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestResolveExplodesLocations(t *testing.T) {
	unit := model.Unit{ID: "u1", RequiredHead: 1, RequiredCo: 1, Locations: []model.TrainingLocation{
		{ID: "l1", UnitID: "u1"},
		{ID: "l2", UnitID: "u1"},
	}}
	dir := &stubDirectory{
		schedules: []model.Schedule{{ID: "s1", UnitID: "u1", Date: day1}},
		units:     map[string]model.Unit{"u1": unit},
	}
	r := newResolver(t, dir, nil, nil, 0)

	cands, err := r.Resolve(context.Background(), day1, day2)
	require.NoError(t, err)
	require.Len(t, cands.Units, 2)
	assert.Equal(t, "l1", cands.Units[0].Location.ID)
	assert.Equal(t, "l2", cands.Units[1].Location.ID)
	for _, c := range cands.Units {
		assert.Equal(t, 2, c.MissingTotal)
		assert.True(t, c.MissingHead)
	}
}

func TestResolveSkipsBlockedAndFullSchedules(t *testing.T) {
	unit := model.Unit{ID: "u1", RequiredHead: 1}
	dir := &stubDirectory{
		schedules: []model.Schedule{
			{ID: "s-blocked", UnitID: "u1", Date: day1, Blocked: true},
			{ID: "s-full", UnitID: "u1", Date: day1},
			{ID: "s-open", UnitID: "u1", Date: day2},
		},
		units: map[string]model.Unit{"u1": unit},
	}
	asgs := &stubAssignments{active: []model.Assignment{
		{ScheduleID: "s-full", InstructorID: "i9", Role: model.RoleHead, State: model.StateAccepted, Date: day1},
	}}
	r := newResolver(t, dir, asgs, nil, 0)

	cands, err := r.Resolve(context.Background(), day1, day2)
	require.NoError(t, err)
	require.Len(t, cands.Units, 1)
	assert.Equal(t, "s-open", cands.Units[0].Schedule.ID)
}

func TestResolveCountsOnlyMatchingLocation(t *testing.T) {
	unit := model.Unit{ID: "u1", RequiredHead: 1, RequiredCo: 1, Locations: []model.TrainingLocation{
		{ID: "l1", UnitID: "u1"},
		{ID: "l2", UnitID: "u1"},
	}}
	dir := &stubDirectory{
		schedules: []model.Schedule{{ID: "s1", UnitID: "u1", Date: day1}},
		units:     map[string]model.Unit{"u1": unit},
	}
	asgs := &stubAssignments{active: []model.Assignment{
		{ScheduleID: "s1", InstructorID: "i1", LocationID: "l1", Role: model.RoleHead, State: model.StatePending, Date: day1},
	}}
	r := newResolver(t, dir, asgs, nil, 0)

	cands, err := r.Resolve(context.Background(), day1, day1)
	require.NoError(t, err)
	require.Len(t, cands.Units, 2)
	byLoc := map[string]UnitCandidate{}
	for _, c := range cands.Units {
		byLoc[c.Location.ID] = c
	}
	assert.Equal(t, 1, byLoc["l1"].MissingTotal)
	assert.Equal(t, 2, byLoc["l2"].MissingTotal)
	// The Head held at l1 covers the whole schedule, so l2 must not ask for
	// another one.
	for _, c := range cands.Units {
		assert.True(t, c.HasActiveHead)
		assert.False(t, c.MissingHead)
	}
}

func TestResolveHeadAtOneLocationCoversSchedule(t *testing.T) {
	unit := model.Unit{ID: "u1", RequiredHead: 1, RequiredCo: 1, Locations: []model.TrainingLocation{
		{ID: "l1", UnitID: "u1"},
		{ID: "l2", UnitID: "u1"},
	}}
	dir := &stubDirectory{
		schedules: []model.Schedule{{ID: "s1", UnitID: "u1", Date: day1}},
		units:     map[string]model.Unit{"u1": unit},
	}
	asgs := &stubAssignments{active: []model.Assignment{
		{ScheduleID: "s1", InstructorID: "i1", LocationID: "l1", Role: model.RoleCo, State: model.StatePending, Date: day1},
	}}
	r := newResolver(t, dir, asgs, nil, 0)

	cands, err := r.Resolve(context.Background(), day1, day1)
	require.NoError(t, err)
	require.Len(t, cands.Units, 2)
	// Only a Co is active, so every card still flags the missing Head.
	for _, c := range cands.Units {
		assert.False(t, c.HasActiveHead)
		assert.True(t, c.MissingHead)
	}
}

func TestResolveEnrichesInstructors(t *testing.T) {
	dir := &stubDirectory{
		schedules: nil,
		instructors: []model.Instructor{
			{ID: "i1", Availability: []time.Time{day1}},
			{ID: "i2", Availability: []time.Time{day2}},
		},
	}
	asgs := &stubAssignments{active: []model.Assignment{
		{ScheduleID: "sX", InstructorID: "i1", UnitID: "u9", LocationID: "l9", State: model.StateAccepted, Date: day1},
	}}
	dists := &stubDistances{records: []model.DistanceRecord{
		{InstructorID: "i1", UnitID: "u1", Km: 7.5, Minutes: 12},
	}}
	r := newResolver(t, dir, asgs, dists, 0)

	cands, err := r.Resolve(context.Background(), day1, day2)
	require.NoError(t, err)
	require.Len(t, cands.Instructors, 2)

	i1 := cands.Instructors[0]
	assert.Equal(t, 1, i1.PeriodAssignments)
	require.Len(t, i1.Booked[DayKey(day1)], 1)
	assert.Equal(t, "u9", i1.Booked[DayKey(day1)][0].UnitID)
	assert.Equal(t, 7.5, i1.Distances["u1"].Km)

	i2 := cands.Instructors[1]
	assert.Zero(t, i2.PeriodAssignments)
	assert.Empty(t, i2.Distances)
}

func TestResolvePaginatesDirectory(t *testing.T) {
	unit := model.Unit{ID: "u1", RequiredHead: 1}
	dir := &stubDirectory{units: map[string]model.Unit{"u1": unit}}
	for i := 0; i < 5; i++ {
		dir.schedules = append(dir.schedules, model.Schedule{ID: string(rune('a' + i)), UnitID: "u1", Date: day1})
		dir.instructors = append(dir.instructors, model.Instructor{ID: string(rune('a' + i))})
	}
	r := newResolver(t, dir, nil, nil, 2)

	cands, err := r.Resolve(context.Background(), day1, day1)
	require.NoError(t, err)
	assert.Len(t, cands.Units, 5)
	assert.Len(t, cands.Instructors, 5)
}

func TestUnitWithoutLocationsGetsOneCard(t *testing.T) {
	unit := model.Unit{ID: "u1", RequiredHead: 1}
	dir := &stubDirectory{
		schedules: []model.Schedule{{ID: "s1", UnitID: "u1", Date: day1}},
		units:     map[string]model.Unit{"u1": unit},
	}
	r := newResolver(t, dir, nil, nil, 0)

	cands, err := r.Resolve(context.Background(), day1, day1)
	require.NoError(t, err)
	require.Len(t, cands.Units, 1)
	assert.Empty(t, cands.Units[0].Location.ID)
}
