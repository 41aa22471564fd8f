// Package service implements the authority's rules for logins, node status,
// submissions and the decryption window, delegating persistence to
// repository interfaces.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/atinyakov/twinlock/internal/models"
	"github.com/atinyakov/twinlock/internal/repository"
	"github.com/jonboulle/clockwork"
)

// NodeRepository defines the node persistence operations the services need.
type NodeRepository interface {
	Upsert(ctx context.Context, n models.Node) error
	// Get returns repository.ErrNotFound for an unknown node.
	Get(ctx context.Context, teamID, nodeID string) (models.Node, error)
	// Partner returns repository.ErrNotFound when the team has one node.
	Partner(ctx context.Context, teamID, nodeID string) (models.Node, error)
	List(ctx context.Context, teams []string) ([]models.Node, error)
	MarkAuthenticated(ctx context.Context, teamID, nodeID string) error
	MarkUnlocked(ctx context.Context, teamID, nodeID string) error
	RecordFailure(ctx context.Context, teamID, nodeID string, maxAttempts int) (int, bool, error)
	Reset(ctx context.Context, teamID, nodeID string) (bool, error)
}

// EventRepository defines the decryption window persistence operations.
type EventRepository interface {
	Get(ctx context.Context) (models.Event, error)
	Start(ctx context.Context, runID string, startedAt time.Time, duration time.Duration) error
	End(ctx context.Context) error
}

// normalizeID uppercases and trims a team or node identifier.
func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// AuthService checks access keys and revalidates persisted identities.
type AuthService struct {
	nodes  NodeRepository
	events EventRepository
	clock  clockwork.Clock
}

// NewAuthService constructs an AuthService.
func NewAuthService(nodes NodeRepository, events EventRepository, clock clockwork.Clock) *AuthService {
	return &AuthService{nodes: nodes, events: events, clock: clock}
}

// Login accepts the node when the access key matches and marks it
// authenticated. A locked or unknown node, or a wrong key, is answered
// with FAIL.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error) {
	teamID, nodeID := normalizeID(req.TeamID), normalizeID(req.NodeID)
	n, err := s.nodes.Get(ctx, teamID, nodeID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.LoginResponse{Status: models.StatusFail}, nil
	}
	if err != nil {
		return models.LoginResponse{}, err
	}
	if n.Locked || subtle.ConstantTimeCompare([]byte(n.AccessKey), []byte(req.AccessKey)) != 1 {
		return models.LoginResponse{Status: models.StatusFail}, nil
	}
	if err := s.nodes.MarkAuthenticated(ctx, teamID, nodeID); err != nil {
		return models.LoginResponse{}, err
	}
	return models.LoginResponse{Status: models.StatusOK, TeamID: n.TeamID, NodeID: n.NodeID}, nil
}

// Restore revalidates an identity a terminal persisted earlier. Only an
// authenticated node that is neither unlocked nor locked may resume.
func (s *AuthService) Restore(ctx context.Context, req models.RestoreRequest) (models.RestoreResponse, error) {
	teamID, nodeID := normalizeID(req.TeamID), normalizeID(req.NodeID)
	n, err := s.nodes.Get(ctx, teamID, nodeID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.RestoreResponse{Status: models.StatusFail}, nil
	}
	if err != nil {
		return models.RestoreResponse{}, err
	}
	if !n.Authenticated || n.Locked || n.Unlocked {
		return models.RestoreResponse{Status: models.StatusFail}, nil
	}
	ev, err := s.events.Get(ctx)
	if err != nil {
		return models.RestoreResponse{}, err
	}
	return models.RestoreResponse{
		Status:            models.StatusOK,
		TeamID:            n.TeamID,
		NodeID:            n.NodeID,
		AttemptsRemaining: n.AttemptsRemaining(),
		EventActive:       ev.Active(s.clock.Now()),
	}, nil
}
