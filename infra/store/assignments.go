package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trainops/instructor-dispatch/core/assignment"
	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/core/outbox"
)

// AssignmentStore implements assignment.Store on PostgreSQL.
type AssignmentStore struct {
	db *sql.DB
}

// NewAssignmentStore creates an AssignmentStore.
func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

var _ assignment.Store = (*AssignmentStore)(nil)

const assignmentColumns = `id, schedule_id, instructor_id, location_id, unit_id, date, role, state, classification, created_at, responded_at`

func scanAssignment(row interface{ Scan(...any) error }) (model.Assignment, error) {
	var a model.Assignment
	var respondedAt sql.NullTime
	err := row.Scan(&a.ID, &a.ScheduleID, &a.InstructorID, &a.LocationID, &a.UnitID,
		&a.Date, &a.Role, &a.State, &a.Classification, &a.CreatedAt, &respondedAt)
	if err != nil {
		return model.Assignment{}, err
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		a.RespondedAt = &t
	}
	return a, nil
}

func (s *AssignmentStore) Latest(ctx context.Context, scheduleID, instructorID string) (model.Assignment, error) {
	q := `SELECT ` + assignmentColumns + `
	FROM assignments
	WHERE schedule_id = $1 AND instructor_id = $2
	ORDER BY created_at DESC, id DESC
	LIMIT 1`
	a, err := scanAssignment(s.db.QueryRowContext(ctx, q, scheduleID, instructorID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, fmt.Errorf("%w: assignment for schedule %s instructor %s",
			model.ErrNotFound, scheduleID, instructorID)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("store: load assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) ActiveInRange(ctx context.Context, start, end time.Time) ([]model.Assignment, error) {
	q := `SELECT ` + assignmentColumns + `
	FROM assignments
	WHERE state IN ('Pending', 'Accepted') AND date BETWEEN $1 AND $2
	ORDER BY date, schedule_id, instructor_id`
	rows, err := s.db.QueryContext(ctx, q, model.MidnightUTC(start), model.MidnightUTC(end))
	if err != nil {
		return nil, fmt.Errorf("store: query active assignments: %w", err)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateBatch inserts one schedule's assignments and outbox events in a
// single transaction. The partial unique indexes catch duplicate active pairs
// and double Heads; the cross-unit check runs explicitly since it spans
// schedules.
func (s *AssignmentStore) CreateBatch(ctx context.Context, assignments []model.Assignment, events []outbox.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin create batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range assignments {
		var conflict string
		err := tx.QueryRowContext(ctx, `
			SELECT unit_id FROM assignments
			WHERE instructor_id = $1 AND date = $2 AND unit_id <> $3
				AND state IN ('Pending', 'Accepted')
			LIMIT 1`,
			a.InstructorID, model.MidnightUTC(a.Date), a.UnitID).Scan(&conflict)
		if err == nil {
			return fmt.Errorf("%w: instructor %s is already booked at unit %s on %s",
				model.ErrValidation, a.InstructorID, conflict, a.Date.Format("2006-01-02"))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: double-booking check: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO assignments (`+assignmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)`,
			a.ID, a.ScheduleID, a.InstructorID, a.LocationID, a.UnitID,
			model.MidnightUTC(a.Date), a.Role, a.State, a.Classification, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: insert assignment for instructor %s: %w", a.InstructorID, err)
		}
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit create batch: %w", err)
	}
	return nil
}

// Transition is the conditional state update: the guard on the current state
// makes exactly one of two concurrent transitions win.
func (s *AssignmentStore) Transition(ctx context.Context, id string, from, to model.AssignmentState, at time.Time) (model.Assignment, error) {
	q := `UPDATE assignments
	SET state = $3, responded_at = $4
	WHERE id = $1 AND state = $2
	RETURNING ` + assignmentColumns
	a, err := scanAssignment(s.db.QueryRowContext(ctx, q, id, from, to, at))
	if errors.Is(err, sql.ErrNoRows) {
		// Either the record is gone or another writer got there first.
		var current model.AssignmentState
		cerr := s.db.QueryRowContext(ctx, `SELECT state FROM assignments WHERE id = $1`, id).Scan(&current)
		if errors.Is(cerr, sql.ErrNoRows) {
			return model.Assignment{}, fmt.Errorf("%w: assignment %s", model.ErrNotFound, id)
		}
		if cerr != nil {
			return model.Assignment{}, fmt.Errorf("store: transition check: %w", cerr)
		}
		return model.Assignment{}, fmt.Errorf("%w: assignment %s is %s, expected %s",
			model.ErrInvalidStateTransition, id, current, from)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("store: transition assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) PromoteTemporary(ctx context.Context, cutoff, now time.Time) ([]model.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `UPDATE assignments
	SET classification = 'Confirmed'
	WHERE state = 'Accepted' AND classification = 'Temporary' AND date <= $1
	RETURNING ` + assignmentColumns
	rows, err := tx.QueryContext(ctx, q, model.MidnightUTC(cutoff))
	if err != nil {
		return nil, fmt.Errorf("store: promote assignments: %w", err)
	}
	var promoted []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan promoted assignment: %w", err)
		}
		promoted = append(promoted, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	events := make([]outbox.Event, 0, len(promoted))
	for _, a := range promoted {
		events = append(events, outbox.NewEvent(a, model.ClassConfirmed, now))
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit promote: %w", err)
	}
	return promoted, nil
}

func (s *AssignmentStore) AcceptedWithoutConfirmedMessage(ctx context.Context) ([]model.Assignment, error) {
	q := `SELECT ` + assignmentColumns + `
	FROM assignments a
	WHERE a.state = 'Accepted'
		AND NOT EXISTS (
			SELECT 1 FROM outbox_events e
			WHERE e.assignment_id = a.id AND e.type = 'Confirmed' AND e.dispatched_at IS NOT NULL
		)
	ORDER BY a.date, a.schedule_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: audit query: %w", err)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan audit row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []outbox.Event) error {
	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_events (id, assignment_id, recipient_id, type, payload, attempts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.ID, ev.AssignmentID, ev.RecipientID, ev.Type, []byte(ev.Payload), ev.Attempts, ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: insert outbox event %s: %w", ev.ID, err)
		}
	}
	return nil
}
