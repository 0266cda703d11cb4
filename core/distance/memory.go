package distance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trainops/instructor-dispatch/core/model"
)

// MemoryStore is an in-memory Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	pairs   map[string]*Pair
	records map[string]model.DistanceRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pairs:   make(map[string]*Pair),
		records: make(map[string]model.DistanceRecord),
	}
}

var _ Store = (*MemoryStore)(nil)

func pairKey(instructorID, unitID string) string { return instructorID + "|" + unitID }

// AddPair seeds a pair awaiting computation.
func (m *MemoryStore) AddPair(p Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.pairs[pairKey(p.InstructorID, p.UnitID)] = &cp
}

func (m *MemoryStore) MissingPairs(_ context.Context, limit int) ([]Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Pair
	for key, p := range m.pairs {
		if _, done := m.records[key]; done {
			continue
		}
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].NextScheduleDate.Equal(out[j].NextScheduleDate) {
			return out[i].NextScheduleDate.Before(out[j].NextScheduleDate)
		}
		if out[i].InstructorID != out[j].InstructorID {
			return out[i].InstructorID < out[j].InstructorID
		}
		return out[i].UnitID < out[j].UnitID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PairByID(_ context.Context, instructorID, unitID string) (Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairs[pairKey(instructorID, unitID)]
	if !ok {
		return Pair{}, fmt.Errorf("%w: pair (%s, %s)", model.ErrNotFound, instructorID, unitID)
	}
	return *p, nil
}

func (m *MemoryStore) SaveRecord(_ context.Context, rec model.DistanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[pairKey(rec.InstructorID, rec.UnitID)] = rec
	return nil
}

func (m *MemoryStore) SaveInstructorCoords(_ context.Context, instructorID string, c model.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pairs {
		if p.InstructorID == instructorID {
			cp := c
			p.InstructorCoords = &cp
		}
	}
	return nil
}

func (m *MemoryStore) SaveUnitCoords(_ context.Context, unitID string, c model.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pairs {
		if p.UnitID == unitID {
			cp := c
			p.UnitCoords = &cp
		}
	}
	return nil
}

func (m *MemoryStore) InvalidateInstructor(_ context.Context, instructorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.pairs {
		if p.InstructorID == instructorID {
			p.InstructorCoords = nil
			delete(m.records, key)
		}
	}
	return nil
}

func (m *MemoryStore) InvalidateUnit(_ context.Context, unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.pairs {
		if p.UnitID == unitID {
			p.UnitCoords = nil
			delete(m.records, key)
		}
	}
	return nil
}

// RecordsByInstructors serves the resolver's distance enrichment.
func (m *MemoryStore) RecordsByInstructors(_ context.Context, instructorIDs []string) ([]model.DistanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(instructorIDs))
	for _, id := range instructorIDs {
		want[id] = true
	}
	var out []model.DistanceRecord
	for _, rec := range m.records {
		if want[rec.InstructorID] {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InstructorID != out[j].InstructorID {
			return out[i].InstructorID < out[j].InstructorID
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out, nil
}

// Records returns a snapshot of computed records. Tests only.
func (m *MemoryStore) Records() []model.DistanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]model.DistanceRecord, 0, len(m.records))
	for _, rec := range m.records {
		all = append(all, rec)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].InstructorID != all[j].InstructorID {
			return all[i].InstructorID < all[j].InstructorID
		}
		return all[i].UnitID < all[j].UnitID
	})
	return all
}
