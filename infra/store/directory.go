package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trainops/instructor-dispatch/core/assignment"
	"github.com/trainops/instructor-dispatch/core/candidate"
	"github.com/trainops/instructor-dispatch/core/model"
)

// Directory serves the read-only instructor/unit/schedule tables.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a Directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

var (
	_ candidate.Directory          = (*Directory)(nil)
	_ candidate.DistanceSource     = (*Directory)(nil)
	_ assignment.ScheduleDirectory = (*Directory)(nil)
)

func (d *Directory) SchedulesInRange(ctx context.Context, start, end time.Time, offset, limit int) ([]model.Schedule, error) {
	q := `SELECT id, unit_id, date, blocked
	FROM schedules
	WHERE date BETWEEN $1 AND $2
	ORDER BY date, id
	OFFSET $3 LIMIT $4`
	rows, err := d.db.QueryContext(ctx, q, model.MidnightUTC(start), model.MidnightUTC(end), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query schedules: %w", err)
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var s model.Schedule
		if err := rows.Scan(&s.ID, &s.UnitID, &s.Date, &s.Blocked); err != nil {
			return nil, fmt.Errorf("store: scan schedule: %w", err)
		}
		s.Date = model.MidnightUTC(s.Date)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *Directory) Schedule(ctx context.Context, id string) (model.Schedule, error) {
	var s model.Schedule
	err := d.db.QueryRowContext(ctx,
		`SELECT id, unit_id, date, blocked FROM schedules WHERE id = $1`, id).
		Scan(&s.ID, &s.UnitID, &s.Date, &s.Blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, fmt.Errorf("%w: schedule %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Schedule{}, fmt.Errorf("store: load schedule %s: %w", id, err)
	}
	s.Date = model.MidnightUTC(s.Date)
	return s, nil
}

func (d *Directory) Unit(ctx context.Context, id string) (model.Unit, error) {
	var u model.Unit
	var lat, lng sql.NullFloat64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, region, address, contact, lat, lng, required_head, required_co
		FROM units WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Region, &u.Address, &u.Contact, &lat, &lng, &u.RequiredHead, &u.RequiredCo)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Unit{}, fmt.Errorf("%w: unit %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Unit{}, fmt.Errorf("store: load unit %s: %w", id, err)
	}
	if lat.Valid && lng.Valid {
		u.Coords = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, unit_id, name, address FROM training_locations WHERE unit_id = $1 ORDER BY id`, id)
	if err != nil {
		return model.Unit{}, fmt.Errorf("store: load locations for unit %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var loc model.TrainingLocation
		if err := rows.Scan(&loc.ID, &loc.UnitID, &loc.Name, &loc.Address); err != nil {
			return model.Unit{}, fmt.Errorf("store: scan location: %w", err)
		}
		u.Locations = append(u.Locations, loc)
	}
	return u, rows.Err()
}

func (d *Directory) InstructorsAvailableBetween(ctx context.Context, start, end time.Time, offset, limit int) ([]model.Instructor, error) {
	q := `SELECT DISTINCT i.id, i.name, i.category, i.team, i.address, i.lat, i.lng
	FROM instructors i
	JOIN instructor_availability av ON av.instructor_id = i.id
	WHERE av.date BETWEEN $1 AND $2
	ORDER BY i.id
	OFFSET $3 LIMIT $4`
	rows, err := d.db.QueryContext(ctx, q, model.MidnightUTC(start), model.MidnightUTC(end), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query instructors: %w", err)
	}
	defer rows.Close()

	var out []model.Instructor
	var ids []any
	for rows.Next() {
		var ins model.Instructor
		var category string
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&ins.ID, &ins.Name, &category, &ins.Team, &ins.Address, &lat, &lng); err != nil {
			return nil, fmt.Errorf("store: scan instructor: %w", err)
		}
		ins.Category = model.CategoryFromString(category)
		if lat.Valid && lng.Valid {
			ins.Home = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, ins)
		ids = append(ids, ins.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	byID := make(map[string]*model.Instructor, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	if err := d.fillAvailability(ctx, byID, start, end); err != nil {
		return nil, err
	}
	if err := d.fillRestrictedAreas(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Directory) fillAvailability(ctx context.Context, byID map[string]*model.Instructor, start, end time.Time) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT instructor_id, date FROM instructor_availability
		WHERE instructor_id = ANY($1) AND date BETWEEN $2 AND $3
		ORDER BY date`, instructorIDs(byID), model.MidnightUTC(start), model.MidnightUTC(end))
	if err != nil {
		return fmt.Errorf("store: query availability: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var date time.Time
		if err := rows.Scan(&id, &date); err != nil {
			return fmt.Errorf("store: scan availability: %w", err)
		}
		if ins, ok := byID[id]; ok {
			ins.Availability = append(ins.Availability, model.MidnightUTC(date))
		}
	}
	return rows.Err()
}

func (d *Directory) fillRestrictedAreas(ctx context.Context, byID map[string]*model.Instructor) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT instructor_id, region FROM instructor_restricted_areas
		WHERE instructor_id = ANY($1)
		ORDER BY region`, instructorIDs(byID))
	if err != nil {
		return fmt.Errorf("store: query restricted areas: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, region string
		if err := rows.Scan(&id, &region); err != nil {
			return fmt.Errorf("store: scan restricted area: %w", err)
		}
		if ins, ok := byID[id]; ok {
			ins.RestrictedAreas = append(ins.RestrictedAreas, region)
		}
	}
	return rows.Err()
}

func instructorIDs(byID map[string]*model.Instructor) []string {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	return ids
}

func (d *Directory) RecordsByInstructors(ctx context.Context, instructorIDs []string) ([]model.DistanceRecord, error) {
	if len(instructorIDs) == 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT instructor_id, unit_id, km, minutes, computed_at
		FROM distance_records
		WHERE instructor_id = ANY($1)
		ORDER BY instructor_id, unit_id`, instructorIDs)
	if err != nil {
		return nil, fmt.Errorf("store: query distance records: %w", err)
	}
	defer rows.Close()

	var out []model.DistanceRecord
	for rows.Next() {
		var rec model.DistanceRecord
		if err := rows.Scan(&rec.InstructorID, &rec.UnitID, &rec.Km, &rec.Minutes, &rec.ComputedAt); err != nil {
			return nil, fmt.Errorf("store: scan distance record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
