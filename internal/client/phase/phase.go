// Package phase defines the modes a node terminal moves through and the
// transitions allowed between them.
package phase

// Phase is the single client-side mode of a terminal.
type Phase string

const (
	Boot     Phase = "BOOT"     // boot sequence is printing
	Login    Phase = "LOGIN"    // waiting for credentials
	Waiting  Phase = "WAITING"  // authenticated, event not started
	Active   Phase = "ACTIVE"   // decryption window open
	Unlocked Phase = "UNLOCKED" // correct answer accepted
	Locked   Phase = "LOCKED"   // attempts exhausted, node locked or window closed
)

var validTransitions = map[Phase][]Phase{
	Boot:    {Login, Waiting},
	Login:   {Waiting},
	Waiting: {Active},
	Active:  {Unlocked, Locked},
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// CanTransitionTo checks if a transition from p to target is valid.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, allowed := range validTransitions[p] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == Unlocked || p == Locked
}

// Polling reports whether the authority must be polled while in p.
func (p Phase) Polling() bool {
	return p == Waiting || p == Active
}
