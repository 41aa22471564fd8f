// Package db opens the authority's PostgreSQL database and runs its
// background maintenance.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    team_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    access_key TEXT NOT NULL,
    cipher_text TEXT NOT NULL DEFAULT '',
    cipher_type TEXT NOT NULL DEFAULT '',
    hint_groups JSONB NOT NULL DEFAULT '[]',
    keyword TEXT NOT NULL DEFAULT '',
    form_link TEXT NOT NULL DEFAULT '',
    authenticated BOOLEAN NOT NULL DEFAULT FALSE,
    attempts_used INT NOT NULL DEFAULT 0,
    unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    locked BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (team_id, node_id)
);

CREATE TABLE IF NOT EXISTS event (
    id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    run_id TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ,
    duration_seconds INT NOT NULL DEFAULT 3600,
    ended BOOLEAN NOT NULL DEFAULT FALSE
);

INSERT INTO event (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
`

// InitPostgres connects to dsn and creates the schema when missing.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
