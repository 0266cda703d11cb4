package model

// TrainingLocation is one training site within a unit. Units with several
// locations need separate instructor headcounts per location.
type TrainingLocation struct {
	ID      string
	UnitID  string
	Name    string
	Address string
}

// Unit mirrors the read-only unit directory entry.
type Unit struct {
	ID        string
	Name      string
	Region    string
	Address   string
	Contact   string
	Coords    *Coordinates
	Locations []TrainingLocation
	// RequiredHead and RequiredCo are the per-location instructor headcounts.
	RequiredHead int
	RequiredCo   int
}

// RequiredHeadcount is the total number of instructors one location needs.
func (u Unit) RequiredHeadcount() int { return u.RequiredHead + u.RequiredCo }
