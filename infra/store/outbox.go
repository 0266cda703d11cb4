package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trainops/instructor-dispatch/core/outbox"
)

// OutboxStore implements outbox.Store on PostgreSQL.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore creates an OutboxStore.
func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

var _ outbox.Store = (*OutboxStore)(nil)

func (s *OutboxStore) Enqueue(ctx context.Context, events []outbox.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit enqueue: %w", err)
	}
	return nil
}

func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]outbox.Event, error) {
	q := `SELECT id, assignment_id, recipient_id, type, payload, attempts, created_at, dispatched_at, last_error
	FROM outbox_events
	WHERE dispatched_at IS NULL
	ORDER BY created_at, id
	LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query pending events: %w", err)
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		var payload []byte
		var dispatchedAt sql.NullTime
		err := rows.Scan(&ev.ID, &ev.AssignmentID, &ev.RecipientID, &ev.Type,
			&payload, &ev.Attempts, &ev.CreatedAt, &dispatchedAt, &ev.LastError)
		if err != nil {
			return nil, fmt.Errorf("store: scan outbox event: %w", err)
		}
		ev.Payload = payload
		if dispatchedAt.Valid {
			t := dispatchedAt.Time
			ev.DispatchedAt = &t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET dispatched_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("store: mark event %s dispatched: %w", id, err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("store: mark event %s failed: %w", id, err)
	}
	return nil
}
