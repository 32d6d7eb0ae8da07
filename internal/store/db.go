// Package store persists bill records and sync-job state in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewDB opens a PostgreSQL connection pool and verifies connectivity.
func NewDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the schema if it does not exist. Safe to run on every
// startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bills (
			id               SERIAL PRIMARY KEY,
			bill_id          TEXT NOT NULL UNIQUE,
			bill_type        TEXT NOT NULL,
			bill_number      INTEGER NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			content          TEXT,
			authors          TEXT[] NOT NULL DEFAULT '{}',
			coauthors        TEXT[] NOT NULL DEFAULT '{}',
			sponsors         TEXT[] NOT NULL DEFAULT '{}',
			cosponsors       TEXT[] NOT NULL DEFAULT '{}',
			subjects         TEXT[] NOT NULL DEFAULT '{}',
			status           TEXT NOT NULL DEFAULT 'Filed',
			last_action      TEXT NOT NULL DEFAULT '',
			last_action_date DATE,
			last_update_ftp  DATE,
			committee_name   TEXT,
			committee_status TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bills_type_number ON bills (bill_type, bill_number)`,
		`CREATE TABLE IF NOT EXISTS sync_jobs (
			id               TEXT PRIMARY KEY,
			status           TEXT NOT NULL,
			session_code     TEXT NOT NULL,
			session_name     TEXT NOT NULL DEFAULT '',
			bill_types       TEXT[] NOT NULL,
			progress_by_type JSONB NOT NULL DEFAULT '{}',
			completed_types  JSONB NOT NULL DEFAULT '{}',
			total_processed  INTEGER NOT NULL DEFAULT 0,
			total_created    INTEGER NOT NULL DEFAULT 0,
			total_updated    INTEGER NOT NULL DEFAULT 0,
			total_errors     INTEGER NOT NULL DEFAULT 0,
			started_at       TIMESTAMPTZ,
			paused_at        TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ,
			last_activity_at TIMESTAMPTZ,
			last_error       TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs (status)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
