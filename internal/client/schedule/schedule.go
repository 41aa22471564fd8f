// Package schedule runs repeating work on an injectable clock.
//
// In production pass clockwork.NewRealClock(); tests pass a FakeClock and
// advance it instead of sleeping.
package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a handle to repeating work started by Repeat.
type Task struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

// Repeat runs fn every interval until the returned task is stopped.
// The next run is armed only after fn returns, so runs of one task never
// overlap even when fn blocks on the network.
func Repeat(clock clockwork.Clock, interval time.Duration, fn func()) *Task {
	t := &Task{clock: clock, interval: interval, fn: fn}
	t.mu.Lock()
	t.timer = clock.AfterFunc(interval, t.run)
	t.mu.Unlock()
	return t
}

func (t *Task) run() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.clock.AfterFunc(t.interval, t.run)
}

// Stop cancels all future runs. It is safe to call on a nil task, more
// than once, and from inside fn.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Running reports whether the task still has runs ahead of it.
func (t *Task) Running() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}
