// Package repository provides PostgreSQL persistence for the authority's
// nodes and its decryption window.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/twinlock/internal/models"
	"github.com/lib/pq"
)

// ErrNotFound is returned when the requested node does not exist.
var ErrNotFound = errors.New("not found")

const nodeColumns = `team_id, node_id, access_key, cipher_text, cipher_type, hint_groups,
	keyword, form_link, authenticated, attempts_used, unlocked, locked`

// PostgresNodeRepository stores node records in the nodes table.
type PostgresNodeRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresNodeRepository creates a PostgresNodeRepository using db.
func NewPostgresNodeRepository(db *sql.DB) *PostgresNodeRepository {
	return &PostgresNodeRepository{DB: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (models.Node, error) {
	var (
		n     models.Node
		hints []byte
	)
	err := row.Scan(&n.TeamID, &n.NodeID, &n.AccessKey, &n.CipherText, &n.CipherType, &hints,
		&n.Keyword, &n.FormLink, &n.Authenticated, &n.AttemptsUsed, &n.Unlocked, &n.Locked)
	if err != nil {
		return models.Node{}, err
	}
	if len(hints) > 0 {
		if err := json.Unmarshal(hints, &n.HintGroups); err != nil {
			return models.Node{}, fmt.Errorf("decode hint groups: %w", err)
		}
	}
	return n, nil
}

// Upsert inserts n or refreshes the puzzle of an existing node. Progress
// columns of an existing node are left untouched.
func (r *PostgresNodeRepository) Upsert(ctx context.Context, n models.Node) error {
	groups := n.HintGroups
	if groups == nil {
		groups = [][]string{}
	}
	hints, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("encode hint groups: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO nodes (team_id, node_id, access_key, cipher_text, cipher_type, hint_groups, keyword, form_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (team_id, node_id) DO UPDATE SET
			access_key = EXCLUDED.access_key,
			cipher_text = EXCLUDED.cipher_text,
			cipher_type = EXCLUDED.cipher_type,
			hint_groups = EXCLUDED.hint_groups,
			keyword = EXCLUDED.keyword,
			form_link = EXCLUDED.form_link
	`, n.TeamID, n.NodeID, n.AccessKey, n.CipherText, n.CipherType, hints, n.Keyword, n.FormLink)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

// Get returns the node teamID/nodeID or ErrNotFound.
func (r *PostgresNodeRepository) Get(ctx context.Context, teamID, nodeID string) (models.Node, error) {
	n, err := scanNode(r.DB.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE team_id = $1 AND node_id = $2`,
		teamID, nodeID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// Partner returns the other node of the team or ErrNotFound.
func (r *PostgresNodeRepository) Partner(ctx context.Context, teamID, nodeID string) (models.Node, error) {
	n, err := scanNode(r.DB.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE team_id = $1 AND node_id <> $2 ORDER BY node_id LIMIT 1`,
		teamID, nodeID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("get partner: %w", err)
	}
	return n, nil
}

// List returns the nodes of the given teams, or every node when teams is
// empty.
func (r *PostgresNodeRepository) List(ctx context.Context, teams []string) ([]models.Node, error) {
	if teams == nil {
		// a nil pq.Array is NULL, whose cardinality is NULL
		teams = []string{}
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE cardinality($1::text[]) = 0 OR team_id = ANY($1)
		 ORDER BY team_id, node_id`,
		pq.Array(teams))
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// MarkAuthenticated records a successful login.
func (r *PostgresNodeRepository) MarkAuthenticated(ctx context.Context, teamID, nodeID string) error {
	return r.exec(ctx, "mark authenticated",
		`UPDATE nodes SET authenticated = true WHERE team_id = $1 AND node_id = $2`, teamID, nodeID)
}

// MarkUnlocked records a correct submission.
func (r *PostgresNodeRepository) MarkUnlocked(ctx context.Context, teamID, nodeID string) error {
	return r.exec(ctx, "mark unlocked",
		`UPDATE nodes SET unlocked = true WHERE team_id = $1 AND node_id = $2`, teamID, nodeID)
}

// RecordFailure consumes one attempt and locks the node when maxAttempts
// have been used. It returns the attempts used and the lock flag after the
// update.
func (r *PostgresNodeRepository) RecordFailure(ctx context.Context, teamID, nodeID string, maxAttempts int) (int, bool, error) {
	var (
		used   int
		locked bool
	)
	err := r.DB.QueryRowContext(ctx, `
		UPDATE nodes
		   SET attempts_used = attempts_used + 1,
		       locked = attempts_used + 1 >= $3
		 WHERE team_id = $1 AND node_id = $2 AND NOT locked AND NOT unlocked
		RETURNING attempts_used, locked
	`, teamID, nodeID, maxAttempts).Scan(&used, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("record failure: %w", err)
	}
	return used, locked, nil
}

// Reset clears the progress of a node so it can log in again. It reports
// whether the node exists.
func (r *PostgresNodeRepository) Reset(ctx context.Context, teamID, nodeID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE nodes
		   SET authenticated = false, attempts_used = 0, unlocked = false, locked = false
		 WHERE team_id = $1 AND node_id = $2
	`, teamID, nodeID)
	if err != nil {
		return false, fmt.Errorf("reset node: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset node: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresNodeRepository) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
