package terminal

import (
	"fmt"
	"strings"

	"github.com/atinyakov/twinlock/internal/models"
)

const (
	rule             = "──────────────────────────────────────────────────"
	awaitingSignal   = "[SYS] Node locked. Awaiting central authority signal..."
	contactAuthority = "[SYS] Contact event authority for assistance."
	sealedMessage    = "[SYS] Terminal is sealed. No further commands accepted."
)

var bootLines = []string{
	"",
	"[SYS] Initializing cryptographic modules...",
	"[SYS] Loading cipher engine...                [OK]",
	"[SYS] Establishing encrypted channel...       [OK]",
	"[SYS] Verifying node integrity...             [OK]",
	"[SYS] Secure node detected.",
	"",
}

var loginUsage = []string{
	"",
	"  Usage  :  login <teamId> <nodeId> <accessKey>",
	"  Example:  login ALPHA SYS-01 ALPHA-NODE1-2024",
	"",
}

func bootBanner() Event {
	return Event{
		Kind:   KindBanner,
		Tone:   ToneInfo,
		Figure: "TWINLOCK",
		Lines:  []string{"TWINLOCK PROTOCOL v3.2  -  NODE TERMINAL"},
	}
}

var helpText = map[string][]string{
	"LOGIN": {
		"  login <teamId> <nodeId> <accessKey>  Authenticate node",
		"  help                                 Show this menu",
		"  clear                                Clear terminal",
	},
	"WAITING": {
		"  status   Show node status",
		"  time     Show time remaining",
		"  help     Show this menu",
		"  clear    Clear terminal",
	},
	"ACTIVE": {
		"  submit <keyword>-<checksum>  Submit decrypted answer",
		"  time                         Check time remaining",
		"  hint                         Request decryption hints",
		"  status                       Show node status",
		"  help                         Show this menu",
		"  clear                        Clear terminal",
	},
}

// checksumGuide explains the answer format. It is shown with the first hint.
func checksumGuide() []string {
	return []string{
		"",
		"[SYS] ── How to submit your answer ──",
		"      1. Decode the cipher to find the keyword",
		"      2. Checksum = add each letter's position (A=1 to Z=26)",
		fmt.Sprintf("         Example: LOCK → L=12+O=15+C=3+K=11 = %d", models.Checksum("LOCK")),
		"      3. Type:  submit <keyword>-<checksum>",
		"         Example: submit " + models.Answer("LOCK"),
	}
}

func alertLevel(used int) (string, Tone) {
	switch {
	case used <= 1:
		return "LOW", ToneWarn
	case used == 2:
		return "MEDIUM", ToneError
	default:
		return "HIGH", ToneError
	}
}

func attemptDots(used int) string {
	var b strings.Builder
	for i := 0; i < models.MaxAttempts; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i < used {
			b.WriteString("●")
		} else {
			b.WriteString("○")
		}
	}
	return b.String()
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func formatWait(secs int) string {
	if secs >= 60 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}
