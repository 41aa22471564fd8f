package service

import (
	"context"
	"errors"
	"strings"

	"github.com/atinyakov/twinlock/internal/models"
	"github.com/atinyakov/twinlock/internal/repository"
	"github.com/jonboulle/clockwork"
)

// NodeService answers status polls and judges submissions.
type NodeService struct {
	nodes  NodeRepository
	events EventRepository
	clock  clockwork.Clock
}

// NewNodeService constructs a NodeService.
func NewNodeService(nodes NodeRepository, events EventRepository, clock clockwork.Clock) *NodeService {
	return &NodeService{nodes: nodes, events: events, clock: clock}
}

// Status returns the polled view of a node. Progress fields are filled only
// for an authenticated node, and the puzzle only while the window is open.
func (s *NodeService) Status(ctx context.Context, teamID, nodeID string) (models.NodeStatus, error) {
	teamID, nodeID = normalizeID(teamID), normalizeID(nodeID)
	ev, err := s.events.Get(ctx)
	if err != nil {
		return models.NodeStatus{}, err
	}
	now := s.clock.Now()
	st := models.NodeStatus{EventActive: ev.Active(now)}

	n, err := s.nodes.Get(ctx, teamID, nodeID)
	if errors.Is(err, repository.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return models.NodeStatus{}, err
	}
	if !n.Authenticated {
		return st, nil
	}

	st.Authenticated = true
	st.NodeLocked = n.Locked
	attempts := n.AttemptsRemaining()
	st.AttemptsRemaining = &attempts

	partner, err := s.nodes.Partner(ctx, teamID, nodeID)
	switch {
	case err == nil:
		st.PartnerUnlocked = partner.Unlocked
		if partner.Unlocked {
			st.PartnerNodeID = partner.NodeID
		}
	case !errors.Is(err, repository.ErrNotFound):
		return models.NodeStatus{}, err
	}

	if st.EventActive {
		st.Cipher = n.CipherText
		st.CipherType = n.CipherType
		st.HintGroups = n.HintGroups
		if st.HintGroups == nil {
			st.HintGroups = [][]string{}
		}
		secs := ev.Remaining(now)
		st.TimeRemainingSeconds = &secs
	}
	return st, nil
}

// Submit judges a payload. The answer is the node keyword followed by "-"
// and its checksum, compared case-insensitively. Every wrong answer uses an
// attempt; the node locks when none remain.
func (s *NodeService) Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
	teamID, nodeID := normalizeID(req.TeamID), normalizeID(req.NodeID)
	n, err := s.nodes.Get(ctx, teamID, nodeID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.SubmitResponse{Status: models.StatusFail, Message: "Node not authenticated."}, nil
	}
	if err != nil {
		return models.SubmitResponse{}, err
	}

	remaining := n.AttemptsRemaining()
	switch {
	case !n.Authenticated:
		return models.SubmitResponse{Status: models.StatusFail, Message: "Node not authenticated."}, nil
	case n.Locked:
		zero := 0
		return models.SubmitResponse{Status: models.StatusLocked, AttemptsRemaining: &zero}, nil
	case n.Unlocked:
		return models.SubmitResponse{Status: models.StatusUnlock, FormLink: n.FormLink}, nil
	}

	ev, err := s.events.Get(ctx)
	if err != nil {
		return models.SubmitResponse{}, err
	}
	if !ev.Active(s.clock.Now()) {
		return models.SubmitResponse{
			Status:            models.StatusFail,
			AttemptsRemaining: &remaining,
			Message:           "Decryption window is not open.",
		}, nil
	}

	if strings.EqualFold(strings.TrimSpace(req.Payload), models.Answer(n.Keyword)) {
		if err := s.nodes.MarkUnlocked(ctx, teamID, nodeID); err != nil {
			return models.SubmitResponse{}, err
		}
		return models.SubmitResponse{Status: models.StatusUnlock, FormLink: n.FormLink}, nil
	}

	used, locked, err := s.nodes.RecordFailure(ctx, teamID, nodeID, models.MaxAttempts)
	if errors.Is(err, repository.ErrNotFound) {
		// locked or unlocked by a concurrent submission
		return s.Submit(ctx, req)
	}
	if err != nil {
		return models.SubmitResponse{}, err
	}
	remaining = max(0, models.MaxAttempts-used)
	if locked {
		return models.SubmitResponse{Status: models.StatusLocked, AttemptsRemaining: &remaining}, nil
	}
	return models.SubmitResponse{
		Status:            models.StatusFail,
		AttemptsRemaining: &remaining,
		Message:           "Incorrect decryption key.",
	}, nil
}
