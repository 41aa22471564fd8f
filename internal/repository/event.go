package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atinyakov/twinlock/internal/models"
)

// PostgresEventRepository stores the single decryption window row.
type PostgresEventRepository struct {
	DB *sql.DB
}

// NewPostgresEventRepository creates a PostgresEventRepository using db.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{DB: db}
}

// Get returns the current window.
func (r *PostgresEventRepository) Get(ctx context.Context) (models.Event, error) {
	var (
		ev      models.Event
		started sql.NullTime
		secs    int64
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT run_id, started_at, duration_seconds, ended FROM event WHERE id = 1`,
	).Scan(&ev.RunID, &started, &secs, &ev.Ended)
	if err != nil {
		return models.Event{}, fmt.Errorf("get event: %w", err)
	}
	if started.Valid {
		t := started.Time
		ev.StartedAt = &t
	}
	ev.Duration = time.Duration(secs) * time.Second
	return ev, nil
}

// Start opens a new window identified by runID.
func (r *PostgresEventRepository) Start(ctx context.Context, runID string, startedAt time.Time, duration time.Duration) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE event
		   SET run_id = $1, started_at = $2, duration_seconds = $3, ended = false
		 WHERE id = 1
	`, runID, startedAt, int64(duration/time.Second))
	if err != nil {
		return fmt.Errorf("start event: %w", err)
	}
	return nil
}

// End closes the window early.
func (r *PostgresEventRepository) End(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, `UPDATE event SET ended = true WHERE id = 1`); err != nil {
		return fmt.Errorf("end event: %w", err)
	}
	return nil
}
