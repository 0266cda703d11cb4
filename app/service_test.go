package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainops/instructor-dispatch/config"
	"github.com/trainops/instructor-dispatch/core/model"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Provider.APIKey = "test-key"
	return cfg
}

func TestNewWiresMemoryMode(t *testing.T) {
	svc, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer func() { require.NoError(t, svc.Close()) }()

	assert.NotNil(t, svc.Resolver)
	assert.NotNil(t, svc.Engine)
	assert.NotNil(t, svc.Assignments)
	assert.NotNil(t, svc.Batch)
	assert.NotNil(t, svc.Dispatcher)

	used, quota, err := svc.Batch.Usage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, 1000, quota)
}

func TestMemoryDirectory(t *testing.T) {
	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	dir := NewMemoryDirectory()
	dir.AddUnit(model.Unit{ID: "u1", RequiredHead: 1})
	dir.AddSchedule(model.Schedule{ID: "s1", UnitID: "u1", Date: day.Add(9 * time.Hour)})
	dir.AddInstructor(model.Instructor{ID: "i1", Availability: []time.Time{day}})
	dir.AddInstructor(model.Instructor{ID: "i2", Availability: []time.Time{day.AddDate(0, 0, 5)}})

	schedules, err := dir.SchedulesInRange(context.Background(), day, day, 0, 10)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.True(t, schedules[0].Date.Equal(day))

	_, err = dir.Schedule(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	instructors, err := dir.InstructorsAvailableBetween(context.Background(), day, day.AddDate(0, 0, 1), 0, 10)
	require.NoError(t, err)
	require.Len(t, instructors, 1)
	assert.Equal(t, "i1", instructors[0].ID)

	// Paging.
	instructors, err = dir.InstructorsAvailableBetween(context.Background(), day, day.AddDate(0, 0, 10), 1, 10)
	require.NoError(t, err)
	require.Len(t, instructors, 1)
	assert.Equal(t, "i2", instructors[0].ID)
}
