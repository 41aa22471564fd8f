package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/twinlock/internal/models"
	"github.com/atinyakov/twinlock/internal/repository"
)

type nodeKey struct{ team, node string }

// memNodes is an in-memory NodeRepository.
type memNodes struct {
	mu    sync.Mutex
	nodes map[nodeKey]models.Node
	err   error
}

func newMemNodes(nodes ...models.Node) *memNodes {
	m := &memNodes{nodes: map[nodeKey]models.Node{}}
	for _, n := range nodes {
		m.nodes[nodeKey{n.TeamID, n.NodeID}] = n
	}
	return m
}

func (m *memNodes) node(team, node string) models.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[nodeKey{team, node}]
}

func (m *memNodes) Upsert(_ context.Context, n models.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	k := nodeKey{n.TeamID, n.NodeID}
	if old, ok := m.nodes[k]; ok {
		n.Authenticated, n.AttemptsUsed, n.Unlocked, n.Locked = old.Authenticated, old.AttemptsUsed, old.Unlocked, old.Locked
	}
	m.nodes[k] = n
	return nil
}

func (m *memNodes) Get(_ context.Context, team, node string) (models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Node{}, m.err
	}
	n, ok := m.nodes[nodeKey{team, node}]
	if !ok {
		return models.Node{}, repository.ErrNotFound
	}
	return n, nil
}

func (m *memNodes) Partner(_ context.Context, team, node string) (models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, n := range m.nodes {
		if k.team == team && k.node != node {
			return n, nil
		}
	}
	return models.Node{}, repository.ErrNotFound
}

func (m *memNodes) List(_ context.Context, teams []string) ([]models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Node
	for _, n := range m.nodes {
		if len(teams) == 0 || contains(teams, n.TeamID) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memNodes) update(team, node string, fn func(*models.Node) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := nodeKey{team, node}
	n, ok := m.nodes[k]
	if !ok || !fn(&n) {
		return false
	}
	m.nodes[k] = n
	return true
}

func (m *memNodes) MarkAuthenticated(_ context.Context, team, node string) error {
	m.update(team, node, func(n *models.Node) bool { n.Authenticated = true; return true })
	return nil
}

func (m *memNodes) MarkUnlocked(_ context.Context, team, node string) error {
	m.update(team, node, func(n *models.Node) bool { n.Unlocked = true; return true })
	return nil
}

func (m *memNodes) RecordFailure(_ context.Context, team, node string, maxAttempts int) (int, bool, error) {
	var (
		used   int
		locked bool
	)
	ok := m.update(team, node, func(n *models.Node) bool {
		if n.Locked || n.Unlocked {
			return false
		}
		n.AttemptsUsed++
		n.Locked = n.AttemptsUsed >= maxAttempts
		used, locked = n.AttemptsUsed, n.Locked
		return true
	})
	if !ok {
		return 0, false, repository.ErrNotFound
	}
	return used, locked, nil
}

func (m *memNodes) Reset(_ context.Context, team, node string) (bool, error) {
	return m.update(team, node, func(n *models.Node) bool {
		n.Authenticated, n.AttemptsUsed, n.Unlocked, n.Locked = false, 0, false, false
		return true
	}), nil
}

// memEvent is an in-memory EventRepository.
type memEvent struct {
	mu  sync.Mutex
	ev  models.Event
	err error
}

func (m *memEvent) Get(context.Context) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ev, m.err
}

func (m *memEvent) Start(_ context.Context, runID string, startedAt time.Time, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ev = models.Event{RunID: runID, StartedAt: &startedAt, Duration: d}
	return nil
}

func (m *memEvent) End(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ev.Ended = true
	return nil
}

var errDown = errors.New("db down")

func alphaNodes() []models.Node {
	return []models.Node{
		{
			TeamID: "ALPHA", NodeID: "SYS-01", AccessKey: "K1",
			CipherText: "XYZZY", CipherType: "CAESAR",
			HintGroups: [][]string{{"[HINT 1] shift by 3"}},
			Keyword:    "lock", FormLink: "https://forms.example/alpha",
		},
		{TeamID: "ALPHA", NodeID: "SYS-02", AccessKey: "K2", Keyword: "key"},
	}
}
