package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/twinlock/internal/models"
	"github.com/atinyakov/twinlock/internal/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrUnknownNode is returned by ResetNode for a node that does not exist.
var ErrUnknownNode = errors.New("unknown node")

// EventService runs the decryption window and the admin operations.
type EventService struct {
	nodes  NodeRepository
	events EventRepository
	clock  clockwork.Clock
	window time.Duration
	log    *zap.Logger

	// NewRunID names each started window.
	NewRunID func() string
}

// NewEventService constructs an EventService. window is the length of a
// window started without an explicit duration.
func NewEventService(nodes NodeRepository, events EventRepository, clock clockwork.Clock, window time.Duration, log *zap.Logger) *EventService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{
		nodes:    nodes,
		events:   events,
		clock:    clock,
		window:   window,
		log:      log,
		NewRunID: uuid.NewString,
	}
}

// Seed upserts the puzzle of every node. Progress of existing nodes is kept.
func (s *EventService) Seed(ctx context.Context, nodes []models.Node) error {
	for _, n := range nodes {
		n.TeamID, n.NodeID = normalizeID(n.TeamID), normalizeID(n.NodeID)
		if err := s.nodes.Upsert(ctx, n); err != nil {
			return fmt.Errorf("seed %s/%s: %w", n.TeamID, n.NodeID, err)
		}
	}
	s.log.Info("nodes seeded", zap.Int("count", len(nodes)))
	return nil
}

// Start opens a new window of the given length, or the default length when
// duration is not positive.
func (s *EventService) Start(ctx context.Context, duration time.Duration) (models.Event, error) {
	if duration <= 0 {
		duration = s.window
	}
	now := s.clock.Now()
	ev := models.Event{RunID: s.NewRunID(), StartedAt: &now, Duration: duration}
	if err := s.events.Start(ctx, ev.RunID, now, duration); err != nil {
		return models.Event{}, err
	}
	s.log.Info("decryption window started",
		zap.String("run_id", ev.RunID), zap.Duration("duration", duration))
	return ev, nil
}

// End closes the window.
func (s *EventService) End(ctx context.Context) error {
	if err := s.events.End(ctx); err != nil {
		return err
	}
	s.log.Info("decryption window ended")
	return nil
}

// Status returns the dashboard view, limited to teams when it is not empty.
func (s *EventService) Status(ctx context.Context, teams []string) (models.AdminStatus, error) {
	for i := range teams {
		teams[i] = normalizeID(teams[i])
	}
	ev, err := s.events.Get(ctx)
	if err != nil {
		return models.AdminStatus{}, err
	}
	nodes, err := s.nodes.List(ctx, teams)
	if err != nil {
		return models.AdminStatus{}, err
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	now := s.clock.Now()
	return models.AdminStatus{
		EventActive:          ev.Active(now),
		EventStarted:         ev.StartedAt != nil,
		RunID:                ev.RunID,
		TimeRemainingSeconds: ev.Remaining(now),
		DurationMinutes:      int(ev.Duration / time.Minute),
		Nodes:                nodes,
	}, nil
}

// ResetNode clears a node's progress.
func (s *EventService) ResetNode(ctx context.Context, teamID, nodeID string) error {
	teamID, nodeID = normalizeID(teamID), normalizeID(nodeID)
	ok, err := s.nodes.Reset(ctx, teamID, nodeID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s/%s: %w", teamID, nodeID, ErrUnknownNode)
	}
	s.log.Info("node reset", zap.String("team", teamID), zap.String("node", nodeID))
	return nil
}

var _ NodeRepository = (*repository.PostgresNodeRepository)(nil)
var _ EventRepository = (*repository.PostgresEventRepository)(nil)
