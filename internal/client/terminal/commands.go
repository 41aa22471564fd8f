package terminal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/twinlock/internal/client/hint"
	"github.com/atinyakov/twinlock/internal/client/phase"
	"github.com/atinyakov/twinlock/internal/client/session"
	"github.com/atinyakov/twinlock/internal/models"
	"go.uber.org/zap"
)

// Execute runs one operator command line. The returned error classifies the
// outcome for the caller; the operator has already been told about it
// through the Sink.
func (m *Machine) Execute(ctx context.Context, line string) error {
	m.mu.Lock()
	defer m.unlock()

	if m.busy || m.phase == phase.Boot {
		return ErrBusy
	}
	if m.phase.Terminal() {
		m.line(ToneError, sealedMessage)
		return ErrSealed
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		m.promptLocked()
		return nil
	}
	verb := strings.ToLower(fields[0])
	m.setInput(false, "")

	var err error
	switch m.phase {
	case phase.Login:
		err = m.loginCommand(ctx, verb, fields)
	case phase.Waiting:
		err = m.waitingCommand(verb)
	case phase.Active:
		err = m.activeCommand(ctx, verb, fields)
	}
	m.promptLocked()
	return err
}

func (m *Machine) helpLocked() {
	m.line(ToneInfo, "", "[SYS] Available Commands:")
	m.line(ToneMuted, helpText[m.phase.String()]...)
	m.line(ToneNormal, "")
}

func (m *Machine) loginCommand(ctx context.Context, verb string, fields []string) error {
	switch verb {
	case "login":
		if len(fields) < 4 {
			m.line(ToneError, "[ERR] Usage: login <teamId> <nodeId> <accessKey>")
			return ErrUsage
		}
		return m.login(ctx, session.Normalize(fields[1]), session.Normalize(fields[2]), fields[3])
	case "help":
		m.helpLocked()
	case "clear":
		m.bootLocked()
	default:
		m.line(ToneError, "[ERR] "+fields[0]+": command not available. Use 'login' to authenticate.")
		return ErrUnknownCommand
	}
	return nil
}

func (m *Machine) login(ctx context.Context, teamID, nodeID, accessKey string) error {
	m.line(ToneInfo, "[AUTH] Authenticating credentials...")

	var (
		resp models.LoginResponse
		err  error
	)
	m.call(func() { resp, err = m.authority.Login(ctx, teamID, nodeID, accessKey) })

	if m.phase != phase.Login {
		return nil
	}
	if err != nil {
		m.log.Warn("login failed", zap.String("team", teamID), zap.String("node", nodeID), zap.Error(err))
		m.line(ToneError, "[ERR] Cannot reach central authority. Check network.")
		return err
	}
	if resp.Status != models.StatusOK || resp.TeamID == "" || resp.NodeID == "" {
		m.log.Info("login rejected", zap.String("team", teamID), zap.String("node", nodeID))
		m.line(ToneError,
			"[AUTH] Authentication failed. Invalid credentials.",
			"[AUTH] Verify teamId, nodeId, and accessKey then retry.",
			"")
		return ErrRejected
	}
	m.authenticatedLocked(session.New(resp.TeamID, resp.NodeID))
	return nil
}

func (m *Machine) waitingCommand(verb string) error {
	switch verb {
	case "status":
		m.line(ToneInfo,
			"",
			"[SYS] Node Status",
			"  Team   : "+m.sess.TeamID,
			"  Node   : "+m.sess.NodeID)
		m.line(ToneWarn,
			"  Phase  : LOCKED, pending start",
			"  Signal : Awaiting central authority...",
			"")
	case "time":
		m.line(ToneWarn, "", "[SYS] Decryption Window: "+m.timerText)
		m.line(ToneMuted, "[SYS] Event has not started yet.", "")
	case "help":
		m.helpLocked()
	case "clear":
		m.emit(Event{Kind: KindClear})
		m.line(ToneWarn, "[SYS] System locked. Awaiting central authority signal...")
	default:
		m.line(ToneWarn, "[SYS] Command rejected. Node is locked pending event start.")
		return ErrUnknownCommand
	}
	return nil
}

func (m *Machine) activeCommand(ctx context.Context, verb string, fields []string) error {
	switch verb {
	case "submit":
		if len(fields) < 2 {
			m.line(ToneError, "[ERR] Usage: submit <keyword>-<checksum>")
			return ErrUsage
		}
		return m.submit(ctx, fields[1])
	case "time":
		m.line(ToneWarn, "", "[SYS] Decryption Window Remaining: "+m.timerText, "")
	case "hint":
		m.hintLocked()
	case "status":
		m.line(ToneInfo,
			"",
			"[SYS] Node Status",
			"  Team              : "+m.sess.TeamID,
			"  Node              : "+m.sess.NodeID,
			fmt.Sprintf("  Attempts Remaining: %d/%d", m.sess.AttemptsRemaining, models.MaxAttempts),
			"  Decryption Window : OPEN",
			"")
	case "help":
		m.helpLocked()
	case "clear":
		m.emit(Event{Kind: KindClear})
		if m.cipher != "" {
			m.line(ToneInfo, "[SYS] Cipher Stream Re-Loaded")
			m.cipherLocked()
		}
	default:
		m.line(ToneError, "[ERR] "+fields[0]+": command rejected.")
		m.line(ToneMuted, "[SYS] Available: submit, time, hint, status, help, clear")
		return ErrUnknownCommand
	}
	return nil
}

func (m *Machine) submit(ctx context.Context, payload string) error {
	m.line(ToneInfo, "[SYS] Transmitting payload to central authority...")

	gen, teamID, nodeID := m.gen, m.sess.TeamID, m.sess.NodeID
	var (
		resp models.SubmitResponse
		err  error
	)
	m.call(func() { resp, err = m.authority.Submit(ctx, teamID, nodeID, payload) })

	if gen != m.gen || m.phase != phase.Active {
		m.log.Debug("submit result dropped", zap.Stringer("phase", m.phase))
		return nil
	}
	if err != nil {
		m.log.Warn("submit failed", zap.String("team", teamID), zap.String("node", nodeID), zap.Error(err))
		m.line(ToneError, "[ERR] Transmission error. Central authority unreachable.")
		return err
	}

	m.log.Info("submission answered",
		zap.String("team", teamID),
		zap.String("node", nodeID),
		zap.String("status", resp.Status))
	switch resp.Status {
	case models.StatusUnlock:
		m.unlockLocked(resp.FormLink)
		return nil
	case models.StatusLocked:
		m.lockLocked()
		return nil
	}

	if resp.AttemptsRemaining != nil {
		m.setAttemptsLocked(*resp.AttemptsRemaining)
	}
	used := models.MaxAttempts - m.sess.AttemptsRemaining
	level, tone := alertLevel(used)
	m.line(ToneError,
		"",
		"[SEC] Validation Failed.",
		fmt.Sprintf("[SEC] Attempt Counter     : %d / %d", used, models.MaxAttempts))
	m.line(tone, "[SEC] Security Alert Level: "+level)
	m.line(ToneMuted, "[SEC] Attempts: "+attemptDots(used))
	remainingTone := ToneWarn
	if m.sess.AttemptsRemaining <= 1 {
		remainingTone = ToneError
	}
	m.line(remainingTone,
		fmt.Sprintf("[SYS] %d attempt(s) remaining before permanent lockout.", m.sess.AttemptsRemaining),
		"")
	return ErrRejected
}

func (m *Machine) hintLocked() {
	res := m.hints.Next(m.groups)
	switch res.Status {
	case hint.Exhausted:
		m.line(ToneError, "", fmt.Sprintf("[SYS] All %d hints have been revealed.", res.Total))
		m.line(ToneMuted, "[SYS] No more hints available. Good luck.", "")
	case hint.CooldownActive:
		wait := int((res.Wait + time.Second - 1) / time.Second)
		m.line(ToneError,
			"",
			"[SYS] Hint cooldown active.",
			fmt.Sprintf("[SYS] Hint %d of %d unlocks in: %s", res.Index+1, res.Total, formatWait(wait)),
			"")
	case hint.Revealed:
		m.line(ToneWarn,
			"",
			fmt.Sprintf("[SYS] Hint %d of %d: authorized release", res.Index+1, res.Total),
			"[SYS] Cipher Type: "+m.cipherType)
		m.line(ToneMuted, rule)
		m.line(ToneWarn, res.Lines...)
		if res.Index == 0 {
			m.line(ToneMuted, checksumGuide()...)
		}
		m.line(ToneMuted, rule)
		if next := res.Index + 1; next < res.Total {
			m.line(ToneMuted, fmt.Sprintf("[SYS] Hint %d of %d available in %s.",
				next+1, res.Total, formatWait(int(m.hints.Cooldown()/time.Second))), "")
		} else {
			m.line(ToneMuted, "[SYS] All hints have been revealed.", "")
		}
	}
}
