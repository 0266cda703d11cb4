package assign

import "sort"

// rank orders the pool in place for one slot. Known distance always beats
// unknown, but unknown distance never excludes a candidate. Head slots
// additionally weigh category seniority; rotation fairness and the
// instructor ID break remaining ties.
func (e *Engine) rank(pool []*state, unitID string, headSlot bool) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		da, aKnown := a.cand.Distances[unitID]
		db, bKnown := b.cand.Distances[unitID]
		switch {
		case aKnown && !bKnown:
			return true
		case !aKnown && bKnown:
			return false
		case aKnown && bKnown && da.Km != db.Km:
			return da.Km < db.Km
		}
		if headSlot {
			ra := e.ranks[a.cand.Instructor.Category]
			rb := e.ranks[b.cand.Instructor.Category]
			if ra != rb {
				return ra > rb
			}
		}
		if a.assignments != b.assignments {
			return a.assignments < b.assignments
		}
		return a.cand.Instructor.ID < b.cand.Instructor.ID
	})
}
