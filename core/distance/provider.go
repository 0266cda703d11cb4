// Package distance keeps (instructor, unit) distance records populated
// without exceeding the external provider's daily call quota.
package distance

import (
	"context"
	"time"

	"github.com/trainops/instructor-dispatch/core/model"
)

// Provider wraps the external geocoding/routing service. Every call counts
// against the daily quota; implementations must honor context deadlines.
type Provider interface {
	Geocode(ctx context.Context, address string) (model.Coordinates, error)
	Route(ctx context.Context, origin, dest model.Coordinates) (model.Leg, error)
}

// Pair is one (instructor, unit) combination awaiting computation, enriched
// with whatever the store already knows. Nil coordinates mean the address
// still needs geocoding.
type Pair struct {
	InstructorID      string
	UnitID            string
	InstructorAddress string
	UnitAddress       string
	InstructorCoords  *model.Coordinates
	UnitCoords        *model.Coordinates
	// NextScheduleDate is the unit's nearest unresolved schedule, used to
	// rank imminent pairs first.
	NextScheduleDate time.Time
}

// Store persists distance records and geocoded coordinates.
type Store interface {
	// MissingPairs returns uncomputed pairs ranked by NextScheduleDate
	// ascending.
	MissingPairs(ctx context.Context, limit int) ([]Pair, error)
	// PairByID loads one pair for on-demand computation; model.ErrNotFound
	// when either side is unknown.
	PairByID(ctx context.Context, instructorID, unitID string) (Pair, error)
	SaveRecord(ctx context.Context, rec model.DistanceRecord) error
	// SaveInstructorCoords and SaveUnitCoords persist geocoding results so a
	// later run does not spend quota on the same address again.
	SaveInstructorCoords(ctx context.Context, instructorID string, c model.Coordinates) error
	SaveUnitCoords(ctx context.Context, unitID string, c model.Coordinates) error
	// InvalidateInstructor and InvalidateUnit reset coordinates and distance
	// records after an address change, forcing recomputation.
	InvalidateInstructor(ctx context.Context, instructorID string) error
	InvalidateUnit(ctx context.Context, unitID string) error
}
