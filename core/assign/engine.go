// Package assign implements the auto-assignment engine: a deterministic,
// explainable ranked matcher that turns candidate lists into proposed
// assignments. It is a preview step; nothing here persists anything.
package assign

import (
	"sort"
	"time"

	"github.com/trainops/instructor-dispatch/core/candidate"
	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/model"
)

// Reason tags a unit card the engine could not fully fill. This is a normal
// output state the admin resolves manually, not an error.
type Reason string

const (
	ReasonNoAvailableInstructor Reason = "NO_AVAILABLE_INSTRUCTOR"
	ReasonDistanceUnknown       Reason = "DISTANCE_UNKNOWN"
	ReasonRestrictedArea        Reason = "RESTRICTED_AREA"
)

// UnitOutcome is the per-card result, including partial fills.
type UnitOutcome struct {
	ScheduleID string         `json:"scheduleId"`
	UnitID     string         `json:"unitId"`
	LocationID string         `json:"locationId,omitempty"`
	Date       time.Time      `json:"date"`
	Proposals  []model.Proposal `json:"proposals"`
	Filled     bool           `json:"filled"`
	Reason     Reason         `json:"reason,omitempty"`
}

// Result is the full preview produced by one engine run.
type Result struct {
	Proposals []model.Proposal `json:"proposals"`
	Outcomes  []UnitOutcome    `json:"outcomes"`
}

// Engine ranks instructor candidates against unit candidates.
type Engine struct {
	cfg   Config
	ranks map[model.Category]int
	log   logger.Logger
}

// NewEngine creates an Engine with the given policy.
func NewEngine(cfg Config, log logger.Logger) *Engine {
	cfg.SetDefaults()
	return &Engine{cfg: cfg, ranks: cfg.categoryRank(), log: log}
}

// state tracks one instructor's load as the run progresses, so proposals made
// for earlier units constrain later ones.
type state struct {
	cand        *candidate.InstructorCandidate
	bookings    map[string][]candidate.Booking
	assignments int
}

// Propose computes the proposed assignment set. The result is deterministic
// for identical inputs: all orderings fall back to IDs.
func (e *Engine) Propose(units []candidate.UnitCandidate, instructors []candidate.InstructorCandidate) Result {
	cards := make([]candidate.UnitCandidate, len(units))
	copy(cards, units)
	// Most understaffed and soonest units are served first.
	sort.SliceStable(cards, func(i, j int) bool {
		if !cards[i].Schedule.Date.Equal(cards[j].Schedule.Date) {
			return cards[i].Schedule.Date.Before(cards[j].Schedule.Date)
		}
		if cards[i].MissingTotal != cards[j].MissingTotal {
			return cards[i].MissingTotal > cards[j].MissingTotal
		}
		if cards[i].Unit.ID != cards[j].Unit.ID {
			return cards[i].Unit.ID < cards[j].Unit.ID
		}
		return cards[i].Location.ID < cards[j].Location.ID
	})

	states := make([]*state, len(instructors))
	for i := range instructors {
		bookings := make(map[string][]candidate.Booking, len(instructors[i].Booked))
		for k, v := range instructors[i].Booked {
			bookings[k] = append([]candidate.Booking(nil), v...)
		}
		states[i] = &state{
			cand:        &instructors[i],
			bookings:    bookings,
			assignments: instructors[i].PeriodAssignments,
		}
	}

	// The Head role is claimed per schedule, not per location: cards of the
	// same schedule share the claim so only the first one filled proposes a
	// Head.
	headTaken := make(map[string]bool)

	var res Result
	for _, card := range cards {
		outcome := e.fill(card, states, headTaken)
		res.Proposals = append(res.Proposals, outcome.Proposals...)
		res.Outcomes = append(res.Outcomes, outcome)
	}
	if e.log != nil {
		e.log.Infof("proposed %d assignments across %d unit cards", len(res.Proposals), len(res.Outcomes))
	}
	return res
}

func (e *Engine) fill(card candidate.UnitCandidate, states []*state, headTaken map[string]bool) UnitOutcome {
	outcome := UnitOutcome{
		ScheduleID: card.Schedule.ID,
		UnitID:     card.Unit.ID,
		LocationID: card.Location.ID,
		Date:       card.Schedule.Date,
	}
	day := candidate.DayKey(card.Schedule.Date)

	pool, restricted := e.eligible(card, states, day)
	slots := card.MissingTotal
	headNeeded := card.MissingHead && !headTaken[card.Schedule.ID]
	unknownPicks, knownPicks := 0, 0

	pick := func(s *state, role model.Role) {
		outcome.Proposals = append(outcome.Proposals, model.Proposal{
			ScheduleID:   card.Schedule.ID,
			UnitID:       card.Unit.ID,
			LocationID:   card.Location.ID,
			InstructorID: s.cand.Instructor.ID,
			Date:         card.Schedule.Date,
			Role:         role,
		})
		s.bookings[day] = append(s.bookings[day], candidate.Booking{UnitID: card.Unit.ID, LocationID: card.Location.ID})
		s.assignments++
		if _, ok := s.cand.Distances[card.Unit.ID]; ok {
			knownPicks++
		} else {
			unknownPicks++
		}
		slots--
	}

	if headNeeded && slots > 0 && len(pool) > 0 {
		e.rank(pool, card.Unit.ID, true)
		pick(pool[0], model.RoleHead)
		headTaken[card.Schedule.ID] = true
		pool = pool[1:]
	}
	if slots > 0 && len(pool) > 0 {
		e.rank(pool, card.Unit.ID, false)
		for _, s := range pool {
			if slots == 0 {
				break
			}
			pick(s, model.RoleCo)
		}
	}

	outcome.Filled = slots == 0
	if !outcome.Filled {
		switch {
		case len(pool) == 0 && len(outcome.Proposals) == 0 && restricted > 0:
			outcome.Reason = ReasonRestrictedArea
		case len(outcome.Proposals) > 0 && knownPicks == 0 && unknownPicks > 0:
			outcome.Reason = ReasonDistanceUnknown
		default:
			outcome.Reason = ReasonNoAvailableInstructor
		}
	}
	return outcome
}

// eligible filters instructors for one card: availability on the exact date,
// no active claim at another unit that day, same-unit multi-location only
// when the policy allows, and no restricted-area bar.
func (e *Engine) eligible(card candidate.UnitCandidate, states []*state, day string) (pool []*state, restricted int) {
	for _, s := range states {
		if !s.cand.Instructor.AvailableOn(card.Schedule.Date) {
			continue
		}
		if blocked := e.bookingConflict(s.bookings[day], card); blocked {
			continue
		}
		if s.cand.Instructor.RestrictedFrom(card.Unit.Region) {
			restricted++
			continue
		}
		pool = append(pool, s)
	}
	return pool, restricted
}

func (e *Engine) bookingConflict(bookings []candidate.Booking, card candidate.UnitCandidate) bool {
	for _, b := range bookings {
		if b.UnitID != card.Unit.ID {
			// Cross-unit double booking is never allowed.
			return true
		}
		if !e.cfg.AllowSameUnitMultiLocation {
			return true
		}
		if b.LocationID == card.Location.ID {
			return true
		}
	}
	return false
}
