// Package terminal drives a node terminal through its phases: it dispatches
// operator commands, reconciles polled authority status, and tells a Sink
// what to display.
package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/atinyakov/twinlock/internal/client/hint"
	"github.com/atinyakov/twinlock/internal/client/phase"
	"github.com/atinyakov/twinlock/internal/client/poll"
	"github.com/atinyakov/twinlock/internal/client/session"
	"github.com/atinyakov/twinlock/internal/client/timer"
	"github.com/atinyakov/twinlock/internal/models"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Authority is the remote event authority as seen by the terminal.
type Authority interface {
	Login(ctx context.Context, teamID, nodeID, accessKey string) (models.LoginResponse, error)
	Restore(ctx context.Context, teamID, nodeID string) (models.RestoreResponse, error)
	Status(ctx context.Context, teamID, nodeID string) (models.NodeStatus, error)
	Submit(ctx context.Context, teamID, nodeID, payload string) (models.SubmitResponse, error)
}

// Config tunes a Machine.
type Config struct {
	PollInterval time.Duration
	HintCooldown time.Duration
}

// Snapshot is a read-only copy of the machine state.
type Snapshot struct {
	Phase           phase.Phase
	Session         session.Session
	Cipher          string
	CipherType      string
	HintGroups      [][]string
	HintsRevealed   int
	PartnerNotified bool
	FormLink        string
	Polling         bool
	TimerRunning    bool
	TimerRemaining  int
}

// Machine is the terminal controller. All state lives behind mu; authority
// calls are made without it while busy is set, and every asynchronous
// callback rechecks phase and session generation before acting.
type Machine struct {
	authority Authority
	store     *session.Store
	sink      Sink
	log       *zap.Logger

	poller *poll.Poller
	timer  *timer.Engine
	hints  *hint.Gate

	mu      sync.Mutex
	emitMu  sync.Mutex
	pending []func(Sink)

	ctx             context.Context
	phase           phase.Phase
	busy            bool
	gen             uint64
	sess            session.Session
	cipher          string
	cipherType      string
	groups          [][]string
	partnerNotified bool
	timerGen        uint64
	formLink        string
	timerText       string
}

// New builds a machine in the BOOT phase. Call Start to run it.
func New(cfg Config, authority Authority, store *session.Store, sink Sink, clock clockwork.Clock, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = session.NewStore(nil, log)
	}
	m := &Machine{
		authority: authority,
		store:     store,
		sink:      sink,
		log:       log,
		ctx:       context.Background(),
		phase:     phase.Boot,
		timerText: "--:--",
	}
	m.poller = poll.NewPoller(clock, cfg.PollInterval, authority, log)
	m.timer = timer.NewEngine(clock, m.onTimerTick, m.onTimerExpire, log)
	m.hints = hint.NewGate(clock, cfg.HintCooldown)
	return m
}

// Start resumes a persisted session when the authority still accepts it and
// runs the boot sequence otherwise. ctx bounds background polling.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.unlock()

	m.ctx = ctx
	m.setInput(false, "")

	var (
		restored session.Restored
		ok       bool
	)
	m.call(func() { restored, ok = m.store.RestoreAndValidate(ctx, m.authority) })
	if ok {
		m.resumeLocked(restored)
	} else {
		m.bootLocked()
	}
	m.promptLocked()
}

// Close stops background work. The machine must not be used afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.unlock()
	m.poller.Stop()
	m.timer.Stop()
}

// Phase returns the current phase.
func (m *Machine) Phase() phase.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Phase:           m.phase,
		Session:         m.sess,
		Cipher:          m.cipher,
		CipherType:      m.cipherType,
		HintGroups:      m.groups,
		HintsRevealed:   m.hints.Revealed(),
		PartnerNotified: m.partnerNotified,
		FormLink:        m.formLink,
		Polling:         m.poller.Running(),
		TimerRunning:    m.timer.Running(),
		TimerRemaining:  m.timer.Remaining(),
	}
}

// unlock releases mu and delivers the output queued while it was held.
// emitMu is taken before mu is released so output stays in state order.
func (m *Machine) unlock() {
	out := m.pending
	m.pending = nil
	m.emitMu.Lock()
	m.mu.Unlock()
	defer m.emitMu.Unlock()
	if m.sink == nil {
		return
	}
	for _, fn := range out {
		fn(m.sink)
	}
}

// call runs fn without holding mu. The machine counts as busy meanwhile so
// no second command can start.
func (m *Machine) call(fn func()) {
	m.busy = true
	m.unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
	}()
	fn()
}

func (m *Machine) emit(ev Event) {
	m.pending = append(m.pending, func(s Sink) { s.Emit(ev) })
}

func (m *Machine) setInput(enabled bool, prompt string) {
	m.pending = append(m.pending, func(s Sink) { s.SetInput(enabled, prompt) })
}

func (m *Machine) line(tone Tone, lines ...string) {
	m.emit(Event{Kind: KindLine, Tone: tone, Lines: lines})
}

func (m *Machine) typed(tone Tone, lines ...string) {
	m.emit(Event{Kind: KindLine, Tone: tone, Lines: lines, Typed: true})
}

func (m *Machine) hudLocked() {
	m.emit(Event{Kind: KindHUD, HUD: HUD{
		TeamID:            m.sess.TeamID,
		NodeID:            m.sess.NodeID,
		AttemptsRemaining: m.sess.AttemptsRemaining,
		MaxAttempts:       models.MaxAttempts,
	}})
}

func (m *Machine) timerLocked(text string, danger bool) {
	m.timerText = text
	m.emit(Event{Kind: KindTimer, Timer: text, Danger: danger})
}

func (m *Machine) countdownLocked(secs int) {
	m.timerLocked(timer.Format(secs), timer.Danger(secs))
}

func (m *Machine) promptText() string {
	if m.phase == phase.Login {
		return "twinlock@auth:~$"
	}
	return m.sess.NodeID + "@twinlock:~$"
}

// promptLocked re-enables input unless a command is in flight or the
// terminal is sealed.
func (m *Machine) promptLocked() {
	if m.busy || m.phase == phase.Boot || m.phase.Terminal() {
		return
	}
	m.setInput(true, m.promptText())
}

// transitionLocked moves to target when the phase table allows it. Leaving
// the polling phases stops polling and the countdown; terminal phases also
// drop the persisted session.
func (m *Machine) transitionLocked(target phase.Phase) bool {
	if !m.phase.CanTransitionTo(target) {
		m.log.Warn("invalid phase transition",
			zap.Stringer("from", m.phase),
			zap.Stringer("to", target))
		return false
	}
	m.log.Info("phase changed",
		zap.Stringer("from", m.phase),
		zap.Stringer("to", target),
		zap.String("team", m.sess.TeamID),
		zap.String("node", m.sess.NodeID))
	m.phase = target
	if !target.Polling() {
		m.poller.Stop()
		m.timer.Stop()
	}
	if target.Terminal() {
		m.store.Clear()
		m.gen++
	}
	return true
}

func (m *Machine) bootLocked() {
	m.emit(Event{Kind: KindClear})
	m.timerLocked("--:--", false)
	m.emit(bootBanner())
	m.typed(ToneInfo, bootLines...)
	m.typed(ToneWarn, "[AUTH] Awaiting authentication...")
	m.typed(ToneMuted, loginUsage...)
	if m.phase == phase.Boot {
		m.transitionLocked(phase.Login)
	}
}

func (m *Machine) resumeLocked(r session.Restored) {
	m.sess = r.Session
	m.gen++
	if !m.transitionLocked(phase.Waiting) {
		return
	}
	m.typed(ToneInfo,
		"",
		"[SYS] Reconnecting to encrypted channel...",
		"[SYS] Session restored for "+m.sess.TeamID+" / "+m.sess.NodeID,
		"")
	m.hudLocked()
	m.line(ToneWarn, awaitingSignal)
	if r.EventActive {
		m.line(ToneMuted, "[SYS] Decryption window already open. Resynchronizing...")
	}
	m.startPollingLocked()
}

func (m *Machine) authenticatedLocked(s session.Session) {
	m.sess = s
	m.gen++
	if !m.transitionLocked(phase.Waiting) {
		return
	}
	m.store.Persist(m.sess)
	m.hudLocked()
	m.emit(Event{Kind: KindBanner, Tone: ToneInfo, Lines: []string{"AUTHENTICATION SUCCESSFUL"}})
	m.typed(ToneInfo,
		"  Node ID            : "+s.NodeID,
		"  Team               : "+s.TeamID,
		"  Authorization Level: Participant",
		"  Decryption Window  : Pending",
		"")
	m.typed(ToneWarn, awaitingSignal)
	m.startPollingLocked()
}

func (m *Machine) startPollingLocked() {
	gen := m.gen
	m.poller.Start(m.ctx, m.sess.TeamID, m.sess.NodeID, func(st models.NodeStatus) {
		m.onStatus(gen, st)
	})
}

func (m *Machine) onStatus(gen uint64, st models.NodeStatus) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen || !m.phase.Polling() {
		m.log.Debug("stale status dropped", zap.Stringer("phase", m.phase))
		return
	}
	m.reconcileLocked(st)
}

func (m *Machine) reconcileLocked(st models.NodeStatus) {
	out := poll.Reconcile(m.phase, m.partnerNotified, st)
	switch out.Decision {
	case poll.Activate:
		m.activateLocked(st)
		return
	case poll.CloseWindow:
		m.closeWindowLocked()
		return
	case poll.LockNode:
		m.lockLocked()
		return
	}

	if out.Broadcast {
		m.partnerNotified = true
		m.broadcastLocked(st.PartnerNodeID)
	}
	if st.AttemptsRemaining != nil {
		m.setAttemptsLocked(*st.AttemptsRemaining)
	}
	if groups := st.Groups(); groups != nil {
		m.groups = groups
	}
	if m.phase == phase.Active && st.TimeRemainingSeconds != nil {
		m.syncTimerLocked(*st.TimeRemainingSeconds)
	}
}

func (m *Machine) setAttemptsLocked(n int) {
	n = min(max(n, 0), models.MaxAttempts)
	if n == m.sess.AttemptsRemaining {
		return
	}
	m.sess.AttemptsRemaining = n
	m.store.Persist(m.sess)
	m.hudLocked()
}

func (m *Machine) syncTimerLocked(secs int) {
	if !m.timer.Running() {
		if m.timer.Expired() {
			return
		}
		m.startTimerLocked(secs)
		return
	}
	if m.timer.Correct(secs) {
		m.countdownLocked(secs)
	}
}

// startTimerLocked starts the countdown for the current session generation.
func (m *Machine) startTimerLocked(secs int) {
	m.timerGen = m.gen
	m.timer.Start(secs)
	m.countdownLocked(secs)
}

func (m *Machine) activateLocked(st models.NodeStatus) {
	if !m.transitionLocked(phase.Active) {
		return
	}
	m.cipher = st.Cipher
	m.cipherType = st.CipherType
	if m.cipherType == "" {
		m.cipherType = "ENCRYPTED"
	}
	m.groups = st.Groups()
	if st.AttemptsRemaining != nil {
		m.setAttemptsLocked(*st.AttemptsRemaining)
	}

	m.setInput(false, "")
	m.emit(Event{Kind: KindClear})
	m.emit(Event{Kind: KindBanner, Tone: ToneInfo, Lines: []string{"CENTRAL AUTHORITY SIGNAL RECEIVED"}})
	lines := []string{"[SYS] Decryption Window Opened."}
	if st.TimeRemainingSeconds != nil {
		lines = append(lines, "[SYS] Time Remaining: "+timer.Format(*st.TimeRemainingSeconds))
	}
	lines = append(lines,
		"",
		"[SYS] Receiving encrypted payload...",
		"[SYS] Parsing fragments...",
		"[SYS] Cipher Stream Loaded.",
		"")
	m.typed(ToneInfo, lines...)
	m.cipherLocked()
	m.line(ToneMuted,
		"[SYS] Decrypt the cipher. Type 'hint' if you need help.",
		"[SYS] submit <keyword>-<checksum>",
		"")
	m.hudLocked()

	if st.TimeRemainingSeconds != nil {
		m.startTimerLocked(*st.TimeRemainingSeconds)
	}
	m.promptLocked()
}

func (m *Machine) cipherLocked() {
	m.line(ToneWarn, "[TYPE] "+m.cipherType, rule)
	m.line(ToneCipher, splitLines(m.cipher)...)
	m.line(ToneMuted, rule, "")
}

func (m *Machine) broadcastLocked(partner string) {
	if partner == "" {
		partner = "PARTNER"
	}
	m.emit(Event{Kind: KindBroadcast, Tone: ToneSuccess, Lines: []string{
		"TWIN-LOCK SYNCHRONIZATION SIGNAL RECEIVED",
		"[BROADCAST] Node " + partner + " has UNLOCKED.",
		"[BROADCAST] Your partner has decoded their cipher!",
		"[SYS] Your node must ALSO unlock to complete the",
		"      Twin-Lock sequence. Decode YOUR cipher now!",
	}})
	m.promptLocked()
}

func (m *Machine) closeWindowLocked() {
	if !m.transitionLocked(phase.Locked) {
		return
	}
	m.setInput(false, "")
	m.timerLocked("00:00", true)
	m.emit(Event{Kind: KindBanner, Tone: ToneError, Lines: []string{"DECRYPTION WINDOW CLOSED"}})
	m.line(ToneError, "[SYS] Payload destroyed.", "[SYS] System sealed.")
	m.line(ToneMuted, contactAuthority)
}

func (m *Machine) lockLocked() {
	if !m.transitionLocked(phase.Locked) {
		return
	}
	m.sess.AttemptsRemaining = 0
	m.setInput(false, "")
	m.hudLocked()
	m.emit(Event{Kind: KindBanner, Tone: ToneError, Lines: []string{"SECURITY BREACH DETECTED"}})
	m.typed(ToneError,
		"[SEC] Node locked permanently.",
		"[SEC] Access revoked.",
		"[SEC] All further input rejected.",
		"")
	m.line(ToneMuted, contactAuthority)
	m.timerLocked("LOCKED", true)
}

func (m *Machine) unlockLocked(formLink string) {
	if !m.transitionLocked(phase.Unlocked) {
		return
	}
	m.formLink = formLink
	m.setInput(false, "")
	m.emit(Event{Kind: KindBanner, Tone: ToneSuccess, Lines: []string{"VALIDATION SUCCESSFUL"}})
	m.typed(ToneSuccess,
		"[SYS] Node authenticated.",
		"[SYS] Synchronization link generated.",
		"")
	m.typed(ToneWarn,
		"[SYS] *** CRITICAL: open the synchronization link NOW ***",
		"[SYS] Both nodes must submit within 10 seconds of each other.",
		"")
	m.line(ToneSuccess, "[SYNC] Link: "+formLink)
	m.line(ToneMuted, "[SYS] Terminal sealed. Input disabled.")
	m.timerLocked("UNLOCKED", false)
}

func (m *Machine) onTimerTick(remaining int) {
	m.mu.Lock()
	defer m.unlock()
	if m.timerGen != m.gen || m.phase != phase.Active {
		return
	}
	m.countdownLocked(remaining)
}

func (m *Machine) onTimerExpire() {
	m.mu.Lock()
	defer m.unlock()
	if m.timerGen != m.gen || m.phase != phase.Active {
		m.log.Debug("stale timer expiry dropped", zap.Stringer("phase", m.phase))
		return
	}
	m.log.Info("decryption window closed by local countdown")
	m.closeWindowLocked()
}
