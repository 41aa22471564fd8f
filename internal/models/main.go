// Package models defines the data structures exchanged between a node
// terminal and the event authority, and the records the authority keeps.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxAttempts is the submission budget of one node.
const MaxAttempts = 3

// Status values returned by the authority.
const (
	// StatusOK marks an accepted login or restore.
	StatusOK = "OK"
	// StatusFail marks a rejected login/restore or a wrong submission.
	StatusFail = "FAIL"
	// StatusUnlock marks a correct submission.
	StatusUnlock = "UNLOCK"
	// StatusLocked marks a node whose submission budget is exhausted.
	StatusLocked = "LOCKED"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	TeamID    string `json:"teamId"`
	NodeID    string `json:"nodeId"`
	AccessKey string `json:"accessKey"`
}

// LoginResponse is the authority's answer to a login.
type LoginResponse struct {
	Status string `json:"status"`
	TeamID string `json:"teamId,omitempty"`
	NodeID string `json:"nodeId,omitempty"`
}

// RestoreRequest is the body of POST /api/auth/restore.
type RestoreRequest struct {
	TeamID string `json:"teamId"`
	NodeID string `json:"nodeId"`
}

// RestoreResponse revalidates a persisted identity.
type RestoreResponse struct {
	Status            string `json:"status"`
	TeamID            string `json:"teamId,omitempty"`
	NodeID            string `json:"nodeId,omitempty"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	EventActive       bool   `json:"eventActive"`
}

// NodeStatus is the polled view of one node. Optional fields are pointers or
// nil slices so that "absent" can be told apart from a zero value.
type NodeStatus struct {
	EventActive     bool   `json:"eventActive"`
	Authenticated   bool   `json:"authenticated"`
	NodeLocked      bool   `json:"nodeLocked"`
	PartnerUnlocked bool   `json:"partnerUnlocked"`
	PartnerNodeID   string `json:"partnerNodeId,omitempty"`

	Cipher     string `json:"cipher,omitempty"`
	CipherType string `json:"cipherType,omitempty"`
	// HintGroups is the structured hint contract.
	HintGroups [][]string `json:"hintGroups,omitempty"`
	// Hints is the flat list older authorities send; see Groups.
	Hints []string `json:"hints,omitempty"`

	AttemptsRemaining    *int `json:"attemptsRemaining,omitempty"`
	TimeRemainingSeconds *int `json:"timeRemainingSeconds,omitempty"`
}

var hintMarker = regexp.MustCompile(`^\[HINT \d+\]`)

// Groups returns the hint groups carried by the status, or nil when the
// status carries no hints at all. A flat Hints list is split at every
// "[HINT n]" marker line; lines before the first marker are dropped, and a
// list without markers becomes a single group.
func (s NodeStatus) Groups() [][]string {
	if s.HintGroups != nil {
		return s.HintGroups
	}
	if s.Hints == nil {
		return nil
	}
	groups := [][]string{}
	var current []string
	for _, line := range s.Hints {
		switch {
		case hintMarker.MatchString(line):
			if current != nil {
				groups = append(groups, current)
			}
			current = []string{line}
		case current != nil:
			current = append(current, line)
		}
	}
	if current != nil {
		groups = append(groups, current)
	}
	if len(groups) == 0 && len(s.Hints) > 0 {
		groups = append(groups, s.Hints)
	}
	return groups
}

// SubmitRequest is the body of POST /api/node/submit.
type SubmitRequest struct {
	TeamID  string `json:"teamId"`
	NodeID  string `json:"nodeId"`
	Payload string `json:"payload"`
}

// SubmitResponse is the authority's verdict on a submission.
type SubmitResponse struct {
	Status            string `json:"status"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
	FormLink          string `json:"formLink,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Node is the authority's record of one terminal identity and its puzzle.
type Node struct {
	TeamID     string     `json:"teamId" yaml:"team"`
	NodeID     string     `json:"nodeId" yaml:"node"`
	AccessKey  string     `json:"-" yaml:"access_key"`
	CipherText string     `json:"-" yaml:"cipher"`
	CipherType string     `json:"cipherType" yaml:"cipher_type"`
	HintGroups [][]string `json:"-" yaml:"hints"`
	Keyword    string     `json:"keyword" yaml:"keyword"`
	FormLink   string     `json:"-" yaml:"form_link"`

	Authenticated bool `json:"authenticated" yaml:"-"`
	AttemptsUsed  int  `json:"attemptsUsed" yaml:"-"`
	Unlocked      bool `json:"unlocked" yaml:"-"`
	Locked        bool `json:"locked" yaml:"-"`
}

// AttemptsRemaining derives the remaining budget from the attempts used.
func (n Node) AttemptsRemaining() int {
	return max(0, MaxAttempts-n.AttemptsUsed)
}

// Event is the single decryption window of the authority.
type Event struct {
	RunID     string        `json:"runId"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Duration  time.Duration `json:"-"`
	Ended     bool          `json:"ended"`
}

// Active reports whether the window is open at now.
func (e Event) Active(now time.Time) bool {
	if e.StartedAt == nil || e.Ended {
		return false
	}
	return now.Before(e.StartedAt.Add(e.Duration))
}

// Remaining returns the whole seconds left in the window at now.
func (e Event) Remaining(now time.Time) int {
	if !e.Active(now) {
		return 0
	}
	return int(e.StartedAt.Add(e.Duration).Sub(now) / time.Second)
}

// ResetRequest is the body of POST /api/admin/reset-node.
type ResetRequest struct {
	TeamID string `json:"teamId"`
	NodeID string `json:"nodeId"`
}

// AdminStatus is the dashboard view returned by GET /api/admin/status.
type AdminStatus struct {
	EventActive          bool   `json:"eventActive"`
	EventStarted         bool   `json:"eventStarted"`
	RunID                string `json:"runId,omitempty"`
	TimeRemainingSeconds int    `json:"timeRemainingSeconds"`
	DurationMinutes      int    `json:"durationMinutes"`
	Nodes                []Node `json:"nodes"`
}

// Checksum adds the alphabet positions (A=1..Z=26) of the letters in word.
// Other characters are ignored.
func Checksum(word string) int {
	sum := 0
	for _, r := range strings.ToUpper(word) {
		if r >= 'A' && r <= 'Z' {
			sum += int(r-'A') + 1
		}
	}
	return sum
}

// Answer is the submission that unlocks a node with the given keyword.
func Answer(keyword string) string {
	k := strings.ToLower(strings.TrimSpace(keyword))
	return fmt.Sprintf("%s-%d", k, Checksum(k))
}
