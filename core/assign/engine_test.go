package assign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainops/instructor-dispatch/core/candidate"
	"github.com/trainops/instructor-dispatch/core/model"
)

var day = time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

func unitCard(scheduleID, unitID string, missing int, missingHead bool) candidate.UnitCandidate {
	return candidate.UnitCandidate{
		Schedule:     model.Schedule{ID: scheduleID, UnitID: unitID, Date: day},
		Unit:         model.Unit{ID: unitID, RequiredHead: 1, RequiredCo: missing - 1},
		MissingTotal: missing,
		MissingHead:  missingHead,
	}
}

func instructor(id string, cat model.Category, km float64, unitIDs ...string) candidate.InstructorCandidate {
	c := candidate.InstructorCandidate{
		Instructor: model.Instructor{ID: id, Category: cat, Availability: []time.Time{day}},
		Booked:     map[string][]candidate.Booking{},
		Distances:  map[string]model.Leg{},
	}
	for _, u := range unitIDs {
		c.Distances[u] = model.Leg{Km: km}
	}
	return c
}

func TestNearSeniorBecomesHead(t *testing.T) {
	e := NewEngine(Config{}, nil)
	units := []candidate.UnitCandidate{unitCard("s1", "u1", 2, true)}
	instructors := []candidate.InstructorCandidate{
		instructor("i-far-co", model.CategoryCo, 20, "u1"),
		instructor("i-near-main", model.CategoryMain, 5, "u1"),
	}
	res := e.Propose(units, instructors)
	require.Len(t, res.Proposals, 2)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, res.Outcomes[0].Filled)

	byID := map[string]model.Role{}
	for _, p := range res.Proposals {
		byID[p.InstructorID] = p.Role
	}
	assert.Equal(t, model.RoleHead, byID["i-near-main"])
	assert.Equal(t, model.RoleCo, byID["i-far-co"])
}

func TestKnownDistanceBeatsSeniorityForHead(t *testing.T) {
	e := NewEngine(Config{}, nil)
	units := []candidate.UnitCandidate{unitCard("s1", "u1", 1, true)}
	instructors := []candidate.InstructorCandidate{
		instructor("i-main-unknown", model.CategoryMain, 0),
		instructor("i-co-known", model.CategoryCo, 12, "u1"),
	}
	res := e.Propose(units, instructors)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "i-co-known", res.Proposals[0].InstructorID)
	assert.Equal(t, model.RoleHead, res.Proposals[0].Role)
}

func TestUnknownDistanceStillEligible(t *testing.T) {
	e := NewEngine(Config{}, nil)
	units := []candidate.UnitCandidate{unitCard("s1", "u1", 1, true)}
	instructors := []candidate.InstructorCandidate{instructor("i1", model.CategoryMain, 0)}
	res := e.Propose(units, instructors)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "i1", res.Proposals[0].InstructorID)
}

func TestNoDoubleBookingAcrossUnits(t *testing.T) {
	e := NewEngine(Config{}, nil)
	units := []candidate.UnitCandidate{
		unitCard("s1", "u1", 1, true),
		unitCard("s2", "u2", 1, true),
	}
	instructors := []candidate.InstructorCandidate{instructor("i1", model.CategoryMain, 5, "u1", "u2")}
	res := e.Propose(units, instructors)
	require.Len(t, res.Proposals, 1)

	var unfilled []UnitOutcome
	for _, o := range res.Outcomes {
		if !o.Filled {
			unfilled = append(unfilled, o)
		}
	}
	require.Len(t, unfilled, 1)
	assert.Equal(t, ReasonNoAvailableInstructor, unfilled[0].Reason)
}

func TestSameUnitMultiLocationPolicy(t *testing.T) {
	cards := func() []candidate.UnitCandidate {
		unit := model.Unit{ID: "u1", RequiredHead: 1, Locations: []model.TrainingLocation{
			{ID: "l1", UnitID: "u1"}, {ID: "l2", UnitID: "u1"},
		}}
		return []candidate.UnitCandidate{
			{Schedule: model.Schedule{ID: "s1", UnitID: "u1", Date: day}, Unit: unit, Location: unit.Locations[0], MissingTotal: 1, MissingHead: true},
			{Schedule: model.Schedule{ID: "s1", UnitID: "u1", Date: day}, Unit: unit, Location: unit.Locations[1], MissingTotal: 1, MissingHead: true},
		}
	}

	strict := NewEngine(Config{}, nil)
	res := strict.Propose(cards(), []candidate.InstructorCandidate{instructor("i1", model.CategoryMain, 5, "u1")})
	assert.Len(t, res.Proposals, 1)

	relaxed := NewEngine(Config{AllowSameUnitMultiLocation: true}, nil)
	res = relaxed.Propose(cards(), []candidate.InstructorCandidate{instructor("i1", model.CategoryMain, 5, "u1")})
	assert.Len(t, res.Proposals, 2)
}

func TestSingleHeadPerScheduleAcrossLocations(t *testing.T) {
	e := NewEngine(Config{}, nil)
	unit := model.Unit{ID: "u1", RequiredHead: 1, RequiredCo: 1, Locations: []model.TrainingLocation{
		{ID: "l1", UnitID: "u1"}, {ID: "l2", UnitID: "u1"},
	}}
	cards := []candidate.UnitCandidate{
		{Schedule: model.Schedule{ID: "s1", UnitID: "u1", Date: day}, Unit: unit, Location: unit.Locations[0], MissingTotal: 1, MissingHead: true},
		{Schedule: model.Schedule{ID: "s1", UnitID: "u1", Date: day}, Unit: unit, Location: unit.Locations[1], MissingTotal: 1, MissingHead: true},
	}
	instructors := []candidate.InstructorCandidate{
		instructor("i-main", model.CategoryMain, 5, "u1"),
		instructor("i-co", model.CategoryCo, 8, "u1"),
	}

	res := e.Propose(cards, instructors)
	require.Len(t, res.Proposals, 2)

	heads := 0
	for _, p := range res.Proposals {
		if p.Role == model.RoleHead {
			heads++
		}
	}
	// Both cards flag the missing Head; only the first filled may claim it.
	assert.Equal(t, 1, heads)
}

func TestRestrictedAreaReason(t *testing.T) {
	e := NewEngine(Config{}, nil)
	card := unitCard("s1", "u1", 1, true)
	card.Unit.Region = "north"
	ins := instructor("i1", model.CategoryMain, 5, "u1")
	ins.Instructor.RestrictedAreas = []string{"north"}

	res := e.Propose([]candidate.UnitCandidate{card}, []candidate.InstructorCandidate{ins})
	require.Len(t, res.Outcomes, 1)
	assert.Empty(t, res.Proposals)
	assert.Equal(t, ReasonRestrictedArea, res.Outcomes[0].Reason)
}

func TestDistanceUnknownReasonOnPartialFill(t *testing.T) {
	e := NewEngine(Config{}, nil)
	card := unitCard("s1", "u1", 2, true)
	res := e.Propose([]candidate.UnitCandidate{card},
		[]candidate.InstructorCandidate{instructor("i1", model.CategoryMain, 0)})
	require.Len(t, res.Outcomes, 1)
	assert.False(t, res.Outcomes[0].Filled)
	assert.Len(t, res.Outcomes[0].Proposals, 1)
	assert.Equal(t, ReasonDistanceUnknown, res.Outcomes[0].Reason)
}

func TestUnavailableInstructorExcluded(t *testing.T) {
	e := NewEngine(Config{}, nil)
	ins := instructor("i1", model.CategoryMain, 5, "u1")
	ins.Instructor.Availability = nil
	res := e.Propose([]candidate.UnitCandidate{unitCard("s1", "u1", 1, true)},
		[]candidate.InstructorCandidate{ins})
	assert.Empty(t, res.Proposals)
	assert.Equal(t, ReasonNoAvailableInstructor, res.Outcomes[0].Reason)
}

func TestDeterministicOutput(t *testing.T) {
	e := NewEngine(Config{}, nil)
	units := []candidate.UnitCandidate{
		unitCard("s2", "u2", 1, true),
		unitCard("s1", "u1", 2, true),
	}
	instructors := []candidate.InstructorCandidate{
		instructor("i3", model.CategoryCo, 8, "u1", "u2"),
		instructor("i1", model.CategoryMain, 8, "u1", "u2"),
		instructor("i2", model.CategoryMain, 8, "u1", "u2"),
	}
	first := e.Propose(units, instructors)
	for i := 0; i < 5; i++ {
		again := NewEngine(Config{}, nil).Propose(units, instructors)
		assert.Equal(t, first, again)
	}
}

func TestMostUnderstaffedUnitServedFirst(t *testing.T) {
	e := NewEngine(Config{}, nil)
	units := []candidate.UnitCandidate{
		unitCard("s-small", "u-small", 1, true),
		unitCard("s-big", "u-big", 3, true),
	}
	// Only one instructor; the most understaffed unit gets the pick.
	res := e.Propose(units, []candidate.InstructorCandidate{
		instructor("i1", model.CategoryMain, 5, "u-small", "u-big"),
	})
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "u-big", res.Proposals[0].UnitID)
}

func TestRotationFairnessBreaksTies(t *testing.T) {
	e := NewEngine(Config{}, nil)
	loaded := instructor("i-a", model.CategoryMain, 5, "u1")
	loaded.PeriodAssignments = 4
	fresh := instructor("i-b", model.CategoryMain, 5, "u1")

	res := e.Propose([]candidate.UnitCandidate{unitCard("s1", "u1", 1, true)},
		[]candidate.InstructorCandidate{loaded, fresh})
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "i-b", res.Proposals[0].InstructorID)
}
