package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup. The directory tables (instructors, units,
// schedules) are owned by the surrounding admin system; they are created here
// too so local runs work against an empty database.
const schema = `
CREATE TABLE IF NOT EXISTS instructors (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	team      TEXT NOT NULL DEFAULT '',
	address   TEXT NOT NULL DEFAULT '',
	lat       DOUBLE PRECISION,
	lng       DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS instructor_availability (
	instructor_id TEXT NOT NULL REFERENCES instructors(id),
	date          DATE NOT NULL,
	PRIMARY KEY (instructor_id, date)
);

CREATE TABLE IF NOT EXISTS instructor_restricted_areas (
	instructor_id TEXT NOT NULL REFERENCES instructors(id),
	region        TEXT NOT NULL,
	PRIMARY KEY (instructor_id, region)
);

CREATE TABLE IF NOT EXISTS units (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	region        TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	contact       TEXT NOT NULL DEFAULT '',
	lat           DOUBLE PRECISION,
	lng           DOUBLE PRECISION,
	required_head INT NOT NULL DEFAULT 1,
	required_co   INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS training_locations (
	id      TEXT PRIMARY KEY,
	unit_id TEXT NOT NULL REFERENCES units(id),
	name    TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS schedules (
	id      TEXT PRIMARY KEY,
	unit_id TEXT NOT NULL REFERENCES units(id),
	date    DATE NOT NULL,
	blocked BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS schedules_date_idx ON schedules (date);

CREATE TABLE IF NOT EXISTS assignments (
	id             UUID PRIMARY KEY,
	schedule_id    TEXT NOT NULL REFERENCES schedules(id),
	instructor_id  TEXT NOT NULL REFERENCES instructors(id),
	location_id    TEXT NOT NULL DEFAULT '',
	unit_id        TEXT NOT NULL,
	date           DATE NOT NULL,
	role           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	classification TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	responded_at   TIMESTAMPTZ
);
-- At most one active assignment per (instructor, schedule), and at most one
-- active Head per schedule; the conditional updates rely on these to stay
-- correct under concurrent writers.
CREATE UNIQUE INDEX IF NOT EXISTS assignments_active_pair_idx
	ON assignments (schedule_id, instructor_id)
	WHERE state IN ('Pending', 'Accepted');
CREATE UNIQUE INDEX IF NOT EXISTS assignments_active_head_idx
	ON assignments (schedule_id)
	WHERE state IN ('Pending', 'Accepted') AND role = 'Head';
CREATE INDEX IF NOT EXISTS assignments_instructor_date_idx
	ON assignments (instructor_id, date);

CREATE TABLE IF NOT EXISTS distance_records (
	instructor_id TEXT NOT NULL REFERENCES instructors(id),
	unit_id       TEXT NOT NULL REFERENCES units(id),
	km            DOUBLE PRECISION NOT NULL,
	minutes       DOUBLE PRECISION NOT NULL,
	computed_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (instructor_id, unit_id)
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id            UUID PRIMARY KEY,
	assignment_id UUID NOT NULL,
	recipient_id  TEXT NOT NULL,
	type          TEXT NOT NULL,
	payload       JSONB NOT NULL,
	attempts      INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	dispatched_at TIMESTAMPTZ,
	last_error    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS outbox_pending_idx
	ON outbox_events (created_at)
	WHERE dispatched_at IS NULL;
`

// InitSchema applies the schema. Statements are idempotent.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}
