package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trainops/instructor-dispatch/core/distance"
	"github.com/trainops/instructor-dispatch/core/model"
)

// DistanceStore implements distance.Store on PostgreSQL.
type DistanceStore struct {
	db *sql.DB
}

// NewDistanceStore creates a DistanceStore.
func NewDistanceStore(db *sql.DB) *DistanceStore {
	return &DistanceStore{db: db}
}

var _ distance.Store = (*DistanceStore)(nil)

// MissingPairs returns (instructor, unit) pairs without a distance record,
// ranked by the unit's nearest unresolved schedule. Only pairs with at least
// one unassigned upcoming schedule qualify, so quota is spent where it matters.
func (s *DistanceStore) MissingPairs(ctx context.Context, limit int) ([]distance.Pair, error) {
	q := `
	SELECT i.id, u.id, i.address, u.address, i.lat, i.lng, u.lat, u.lng, next.date
	FROM instructors i
	CROSS JOIN units u
	JOIN LATERAL (
		SELECT MIN(sc.date) AS date
		FROM schedules sc
		WHERE sc.unit_id = u.id AND NOT sc.blocked AND sc.date >= CURRENT_DATE
			AND NOT EXISTS (
				SELECT 1 FROM assignments a
				WHERE a.schedule_id = sc.id AND a.state IN ('Pending', 'Accepted')
			)
	) next ON next.date IS NOT NULL
	WHERE NOT EXISTS (
		SELECT 1 FROM distance_records dr
		WHERE dr.instructor_id = i.id AND dr.unit_id = u.id
	)
	ORDER BY next.date, i.id, u.id
	LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query missing pairs: %w", err)
	}
	defer rows.Close()

	var out []distance.Pair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *DistanceStore) PairByID(ctx context.Context, instructorID, unitID string) (distance.Pair, error) {
	q := `
	SELECT i.id, u.id, i.address, u.address, i.lat, i.lng, u.lat, u.lng, CURRENT_DATE
	FROM instructors i, units u
	WHERE i.id = $1 AND u.id = $2`
	p, err := scanPair(s.db.QueryRowContext(ctx, q, instructorID, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return distance.Pair{}, fmt.Errorf("%w: instructor %s or unit %s", model.ErrNotFound, instructorID, unitID)
	}
	if err != nil {
		return distance.Pair{}, err
	}
	return p, nil
}

func scanPair(row interface{ Scan(...any) error }) (distance.Pair, error) {
	var p distance.Pair
	var iLat, iLng, uLat, uLng sql.NullFloat64
	err := row.Scan(&p.InstructorID, &p.UnitID, &p.InstructorAddress, &p.UnitAddress,
		&iLat, &iLng, &uLat, &uLng, &p.NextScheduleDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return distance.Pair{}, err
		}
		return distance.Pair{}, fmt.Errorf("store: scan pair: %w", err)
	}
	if iLat.Valid && iLng.Valid {
		p.InstructorCoords = &model.Coordinates{Lat: iLat.Float64, Lng: iLng.Float64}
	}
	if uLat.Valid && uLng.Valid {
		p.UnitCoords = &model.Coordinates{Lat: uLat.Float64, Lng: uLng.Float64}
	}
	p.NextScheduleDate = model.MidnightUTC(p.NextScheduleDate)
	return p, nil
}

func (s *DistanceStore) SaveRecord(ctx context.Context, rec model.DistanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distance_records (instructor_id, unit_id, km, minutes, computed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instructor_id, unit_id)
		DO UPDATE SET km = EXCLUDED.km, minutes = EXCLUDED.minutes, computed_at = EXCLUDED.computed_at`,
		rec.InstructorID, rec.UnitID, rec.Km, rec.Minutes, rec.ComputedAt)
	if err != nil {
		return fmt.Errorf("store: save distance record: %w", err)
	}
	return nil
}

func (s *DistanceStore) SaveInstructorCoords(ctx context.Context, instructorID string, c model.Coordinates) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE instructors SET lat = $2, lng = $3 WHERE id = $1`, instructorID, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("store: save instructor coords: %w", err)
	}
	return nil
}

func (s *DistanceStore) SaveUnitCoords(ctx context.Context, unitID string, c model.Coordinates) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE units SET lat = $2, lng = $3 WHERE id = $1`, unitID, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("store: save unit coords: %w", err)
	}
	return nil
}

func (s *DistanceStore) InvalidateInstructor(ctx context.Context, instructorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin invalidate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`UPDATE instructors SET lat = NULL, lng = NULL WHERE id = $1`, instructorID); err != nil {
		return fmt.Errorf("store: reset instructor coords: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM distance_records WHERE instructor_id = $1`, instructorID); err != nil {
		return fmt.Errorf("store: delete instructor distance records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit invalidate: %w", err)
	}
	return nil
}

func (s *DistanceStore) InvalidateUnit(ctx context.Context, unitID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin invalidate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`UPDATE units SET lat = NULL, lng = NULL WHERE id = $1`, unitID); err != nil {
		return fmt.Errorf("store: reset unit coords: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM distance_records WHERE unit_id = $1`, unitID); err != nil {
		return fmt.Errorf("store: delete unit distance records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit invalidate: %w", err)
	}
	return nil
}
