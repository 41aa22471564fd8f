// Package hint releases hint groups one at a time behind a cooldown.
package hint

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultCooldown is the wait between reveals during a live event.
	DefaultCooldown = 5 * time.Minute
	// RehearsalCooldown is the shorter wait used when rehearsing an event.
	RehearsalCooldown = 30 * time.Second
	// FallbackGroups is the group count assumed when no hints are known.
	FallbackGroups = 3
)

// Status is the outcome of a reveal request.
type Status int

const (
	// Revealed means a new group was released.
	Revealed Status = iota
	// CooldownActive means the next group is not yet available.
	CooldownActive
	// Exhausted means every group has been released.
	Exhausted
)

// Result describes what a reveal request produced.
type Result struct {
	Status Status
	// Index is the zero-based group released, or the group waiting on cooldown.
	Index int
	Total int
	Lines []string
	// Wait is the remaining cooldown when Status is CooldownActive.
	Wait time.Duration
}

// Gate tracks how many groups were revealed and when the next may be.
// It is not safe for concurrent use.
type Gate struct {
	clock         clockwork.Clock
	cooldown      time.Duration
	revealed      int
	cooldownUntil time.Time
}

// NewGate returns a gate with nothing revealed. A non-positive cooldown
// falls back to DefaultCooldown.
func NewGate(clock clockwork.Clock, cooldown time.Duration) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{clock: clock, cooldown: cooldown}
}

// Next releases the next group of groups if the cooldown allows it.
func (g *Gate) Next(groups [][]string) Result {
	total := len(groups)
	if total == 0 {
		total = FallbackGroups
	}
	if g.revealed >= total {
		return Result{Status: Exhausted, Index: g.revealed, Total: total}
	}

	now := g.clock.Now()
	if g.revealed > 0 && now.Before(g.cooldownUntil) {
		return Result{
			Status: CooldownActive,
			Index:  g.revealed,
			Total:  total,
			Wait:   g.cooldownUntil.Sub(now),
		}
	}

	idx := g.revealed
	var lines []string
	if idx < len(groups) && len(groups[idx]) > 0 {
		lines = append(lines, groups[idx]...)
	} else {
		lines = []string{fmt.Sprintf("[HINT %d] No hint available.", idx+1)}
	}
	g.revealed++
	g.cooldownUntil = now.Add(g.cooldown)

	return Result{Status: Revealed, Index: idx, Total: total, Lines: lines}
}

// Revealed returns the number of groups released so far.
func (g *Gate) Revealed() int {
	return g.revealed
}

// Cooldown returns the configured wait between reveals.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}
