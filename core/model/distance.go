package model

import "time"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Leg is a travel estimate between two points.
type Leg struct {
	Km      float64 `json:"km"`
	Minutes float64 `json:"minutes"`
}

// DistanceRecord holds the computed travel estimate for one
// (instructor, unit) pair. Records are created only by the distance batch or
// an on-demand computation and are read-only everywhere else. Staleness is
// tolerated; a record is invalidated explicitly when an address changes.
type DistanceRecord struct {
	InstructorID string
	UnitID       string
	Km           float64
	Minutes      float64
	ComputedAt   time.Time
}
