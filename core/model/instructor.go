package model

import "time"

// Category classifies an instructor's seniority. The zero value is unknown and
// ranks last.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryPracticum
	CategoryAssistant
	CategoryCo
	CategoryMain
)

// Rank returns the seniority rank of the category. Higher is more senior.
func (c Category) Rank() int { return int(c) }

func (c Category) String() string {
	switch c {
	case CategoryMain:
		return "Main"
	case CategoryCo:
		return "Co"
	case CategoryAssistant:
		return "Assistant"
	case CategoryPracticum:
		return "Practicum"
	default:
		return "Unknown"
	}
}

// CategoryFromString parses a category name. Unknown names map to
// CategoryUnknown rather than an error so imported directory data never blocks
// matching.
func CategoryFromString(s string) Category {
	switch s {
	case "Main":
		return CategoryMain
	case "Co":
		return CategoryCo
	case "Assistant":
		return CategoryAssistant
	case "Practicum":
		return CategoryPracticum
	default:
		return CategoryUnknown
	}
}

// Instructor mirrors the read-only instructor directory entry used by the
// matching engine. Availability holds declared availability dates at day
// granularity.
type Instructor struct {
	ID           string
	Name         string
	Category     Category
	Team         string
	Address      string
	Home         *Coordinates
	Availability []time.Time
	// RestrictedAreas lists unit regions the instructor must not be
	// dispatched to.
	RestrictedAreas []string
}

// AvailableOn reports whether the instructor declared availability on the
// given calendar date.
func (i Instructor) AvailableOn(date time.Time) bool {
	for _, d := range i.Availability {
		if SameDay(d, date) {
			return true
		}
	}
	return false
}

// RestrictedFrom reports whether the region is barred for this instructor.
func (i Instructor) RestrictedFrom(region string) bool {
	if region == "" {
		return false
	}
	for _, r := range i.RestrictedAreas {
		if r == region {
			return true
		}
	}
	return false
}
