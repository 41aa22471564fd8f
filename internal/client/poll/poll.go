// Package poll fetches the authoritative node status on a fixed period and
// decides what each status means for the terminal's phase.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/atinyakov/twinlock/internal/client/phase"
	"github.com/atinyakov/twinlock/internal/client/schedule"
	"github.com/atinyakov/twinlock/internal/models"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultInterval is the time between two status fetches.
const DefaultInterval = 2500 * time.Millisecond

// StatusFetcher reads the polled view of a node.
type StatusFetcher interface {
	Status(ctx context.Context, teamID, nodeID string) (models.NodeStatus, error)
}

// Decision is the phase change a status calls for.
type Decision int

const (
	// Hold keeps the phase; the status only refreshes data.
	Hold Decision = iota
	// Activate opens the decryption window on a waiting node.
	Activate
	// CloseWindow locks an active node because the event ended.
	CloseWindow
	// LockNode locks an active node the authority reports as locked.
	LockNode
)

func (d Decision) String() string {
	switch d {
	case Activate:
		return "activate"
	case CloseWindow:
		return "close-window"
	case LockNode:
		return "lock-node"
	default:
		return "hold"
	}
}

// Outcome is the result of reconciling one status.
type Outcome struct {
	Decision Decision
	// Broadcast asks for the one-time partner-unlocked notice.
	Broadcast bool
}

// Reconcile applies the status rules in priority order. The first three
// rules end evaluation; the partner notice and the data refresh only apply
// when the phase is held.
func Reconcile(p phase.Phase, partnerNotified bool, st models.NodeStatus) Outcome {
	switch {
	case st.EventActive && p == phase.Waiting:
		return Outcome{Decision: Activate}
	case !st.EventActive && p == phase.Active:
		return Outcome{Decision: CloseWindow}
	case st.NodeLocked && p == phase.Active:
		return Outcome{Decision: LockNode}
	}
	return Outcome{
		Decision:  Hold,
		Broadcast: p == phase.Active && st.PartnerUnlocked && !partnerNotified,
	}
}

// Poller repeatedly fetches status for one node. Fetch failures are logged
// at debug level and otherwise ignored; the next tick simply tries again.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration
	fetcher  StatusFetcher
	log      *zap.Logger

	mu     sync.Mutex
	task   *schedule.Task
	cancel context.CancelFunc
}

// NewPoller returns a stopped poller. A non-positive interval falls back to
// DefaultInterval.
func NewPoller(clock clockwork.Clock, interval time.Duration, fetcher StatusFetcher, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{clock: clock, interval: interval, fetcher: fetcher, log: log}
}

// Start begins polling teamID/nodeID and hands every fetched status to
// handle. It reports false and does nothing when already running.
func (p *Poller) Start(ctx context.Context, teamID, nodeID string, handle func(models.NodeStatus)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task.Running() {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.task = schedule.Repeat(p.clock, p.interval, func() {
		p.Poll(ctx, teamID, nodeID, handle)
	})
	p.log.Debug("polling started", zap.String("team", teamID), zap.String("node", nodeID))
	return true
}

// Poll performs a single fetch and hands the status to handle on success.
func (p *Poller) Poll(ctx context.Context, teamID, nodeID string, handle func(models.NodeStatus)) {
	st, err := p.fetcher.Status(ctx, teamID, nodeID)
	if err != nil {
		p.log.Debug("status poll failed", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	handle(st)
}

// Stop cancels polling and any fetch in flight. Safe to call when stopped
// and from inside handle.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task == nil {
		return
	}
	p.task.Stop()
	p.task = nil
	p.cancel()
	p.cancel = nil
	p.log.Debug("polling stopped")
}

// Running reports whether polling is scheduled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task.Running()
}

// Interval returns the time between fetches.
func (p *Poller) Interval() time.Duration {
	return p.interval
}
