// Package session persists the identity of a node terminal across reloads
// and revalidates it against the authority on startup.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/atinyakov/twinlock/internal/models"
	"go.uber.org/zap"
)

const storageKey = "tl_sess"

// Session is the identity bound to one terminal instance.
type Session struct {
	TeamID            string `json:"teamId"`
	NodeID            string `json:"nodeId"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

// New returns a session for a freshly authenticated node.
func New(teamID, nodeID string) Session {
	return Session{
		TeamID:            Normalize(teamID),
		NodeID:            Normalize(nodeID),
		AttemptsRemaining: models.MaxAttempts,
	}
}

// Normalize trims and uppercases an identifier the way the authority does.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Valid reports whether both identity fields are set.
func (s Session) Valid() bool {
	return s.TeamID != "" && s.NodeID != ""
}

// Restorer revalidates a persisted identity.
type Restorer interface {
	Restore(ctx context.Context, teamID, nodeID string) (models.RestoreResponse, error)
}

// Restored is a revalidated session plus the authority's event hint.
type Restored struct {
	Session     Session
	EventActive bool
}

// Store reads and writes the session through a Backend. Storage failures
// are logged and otherwise ignored; a terminal without storage just loses
// its session on reload.
type Store struct {
	backend Backend
	log     *zap.Logger
}

// NewStore wraps backend. A nil backend makes every operation a no-op.
func NewStore(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, log: log}
}

// Persist writes sess. Invalid sessions are never written.
func (s *Store) Persist(sess Session) {
	if s == nil || s.backend == nil || !sess.Valid() {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		s.log.Warn("encode session", zap.Error(err))
		return
	}
	if err := s.backend.Set(storageKey, data); err != nil {
		s.log.Warn("persist session", zap.Error(err))
	}
}

// Clear removes any stored session.
func (s *Store) Clear() {
	if s == nil || s.backend == nil {
		return
	}
	if err := s.backend.Delete(storageKey); err != nil {
		s.log.Warn("clear session", zap.Error(err))
	}
}

// Load returns the stored session without contacting the authority.
func (s *Store) Load() (Session, bool) {
	if s == nil || s.backend == nil {
		return Session{}, false
	}
	data, err := s.backend.Get(storageKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("load session", zap.Error(err))
		}
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.log.Warn("malformed session record", zap.Error(err))
		return Session{}, false
	}
	sess.TeamID = Normalize(sess.TeamID)
	sess.NodeID = Normalize(sess.NodeID)
	if !sess.Valid() {
		s.log.Warn("incomplete session record")
		return Session{}, false
	}
	return sess, true
}

// RestoreAndValidate loads the stored session and asks the authority whether
// it still holds. Anything short of an OK clears the storage and reports no
// session. On success the attempts come from the authority and the refreshed
// session is written back.
func (s *Store) RestoreAndValidate(ctx context.Context, r Restorer) (Restored, bool) {
	if s == nil || s.backend == nil {
		return Restored{}, false
	}
	sess, ok := s.Load()
	if !ok {
		s.Clear()
		return Restored{}, false
	}

	resp, err := r.Restore(ctx, sess.TeamID, sess.NodeID)
	if err != nil {
		s.log.Warn("session restore failed",
			zap.String("team", sess.TeamID),
			zap.String("node", sess.NodeID),
			zap.Error(err))
		s.Clear()
		return Restored{}, false
	}
	if resp.Status != models.StatusOK {
		s.log.Info("session rejected by authority",
			zap.String("team", sess.TeamID),
			zap.String("node", sess.NodeID),
			zap.String("status", resp.Status))
		s.Clear()
		return Restored{}, false
	}

	sess.AttemptsRemaining = min(max(resp.AttemptsRemaining, 0), models.MaxAttempts)
	s.Persist(sess)
	return Restored{Session: sess, EventActive: resp.EventActive}, true
}
