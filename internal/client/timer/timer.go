// Package timer counts the decryption window down locally and reconciles
// the count with the authority's remaining time.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/twinlock/internal/client/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DriftTolerance is the largest local/authority difference, in seconds,
	// that is left uncorrected.
	DriftTolerance = 3
	// DangerThreshold is the remaining time, in seconds, below which the
	// countdown is shown as urgent.
	DangerThreshold = 60
)

// Engine is a one-second countdown. Start and Correct never call back into
// the owner; onTick and onExpire run on the tick goroutine only.
type Engine struct {
	clock    clockwork.Clock
	onTick   func(remaining int)
	onExpire func()
	log      *zap.Logger

	mu        sync.Mutex
	remaining int
	running   bool
	expired   bool
	task      *schedule.Task
	// gen identifies the current countdown; ticks armed for an earlier one
	// are dropped.
	gen uint64
}

// NewEngine creates a stopped engine. onTick receives the remaining seconds
// after every local decrement; onExpire fires once when the count reaches zero.
func NewEngine(clock clockwork.Clock, onTick func(int), onExpire func(), log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if onTick == nil {
		onTick = func(int) {}
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Engine{clock: clock, onTick: onTick, onExpire: onExpire, log: log}
}

// Start discards any running countdown and counts down from seconds.
func (e *Engine) Start(seconds int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired = false
	e.restartLocked(seconds)
}

func (e *Engine) restartLocked(seconds int) {
	e.task.Stop()
	e.remaining = max(0, seconds)
	e.running = true
	e.gen++
	gen := e.gen
	e.task = schedule.Repeat(e.clock, time.Second, func() { e.tick(gen) })
}

// Stop halts the countdown. Safe to call when already stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.task.Stop()
	e.task = nil
	e.running = false
}

// Correct offers an authoritative remaining time. The countdown restarts from
// it only when the difference exceeds DriftTolerance, and never once the
// countdown has expired. It reports whether a restart happened.
func (e *Engine) Correct(authoritative int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.expired || !e.running {
		return false
	}
	diff := e.remaining - authoritative
	if diff < 0 {
		diff = -diff
	}
	if diff <= DriftTolerance {
		return false
	}
	e.log.Debug("timer drift corrected",
		zap.Int("local", e.remaining),
		zap.Int("authority", authoritative))
	e.restartLocked(authoritative)
	return true
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if !e.running || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.remaining--
	fire := false
	if e.remaining <= 0 {
		e.remaining = 0
		e.stopLocked()
		if !e.expired {
			e.expired = true
			fire = true
		}
	}
	remaining := e.remaining
	e.mu.Unlock()

	e.onTick(remaining)
	if fire {
		e.log.Info("decryption window expired locally")
		e.onExpire()
	}
}

// Remaining returns the local remaining seconds.
func (e *Engine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Running reports whether the countdown is ticking.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Expired reports whether the countdown reached zero since the last Start.
func (e *Engine) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

// Danger reports whether secs should be shown as urgent.
func Danger(secs int) bool {
	return secs < DangerThreshold
}

// Format renders secs as MM:SS.
func Format(secs int) string {
	if secs <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
