// Package store implements the persistence ports on PostgreSQL via
// database/sql and the pgx driver.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config holds the database connection settings.
type Config struct {
	URL             string `json:"url"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifeMins int    `json:"conn_max_life_mins"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifeMins <= 0 {
		c.ConnMaxLifeMins = 30
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("database url is required")
	}
	return nil
}

// Open opens and verifies the PostgreSQL connection pool.
func Open(cfg Config) (*sql.DB, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeMins) * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: verify postgres connection: %w", err)
	}
	return db, nil
}
