package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Schema holds the job tables. Applied by EnsureSchema on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	config_json JSONB NOT NULL DEFAULT '{}',
	output_dir TEXT NOT NULL DEFAULT '',
	result_ref TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS job_events (
	id BIGSERIAL PRIMARY KEY,
	job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	from_status TEXT,
	to_status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id);
`

// DB wraps the sql connection shared by the repositories
type DB struct {
	*sql.DB
}

// NewDB opens a postgres connection and verifies it
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// EnsureSchema creates the job tables if they do not exist
func (db *DB) EnsureSchema() error {
	_, err := db.Exec(Schema)
	return err
}
