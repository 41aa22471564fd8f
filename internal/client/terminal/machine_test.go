package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/twinlock/internal/client/phase"
	"github.com/atinyakov/twinlock/internal/client/session"
	"github.com/atinyakov/twinlock/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("offline")

func intPtr(v int) *int { return &v }

type fakeAuthority struct {
	mu sync.Mutex

	loginResp   models.LoginResponse
	loginErr    error
	restoreResp models.RestoreResponse
	restoreErr  error
	status      models.NodeStatus
	statusErr   error
	submits     []models.SubmitResponse
	submitErr   error

	// submitStarted and submitRelease make Submit block until released.
	submitStarted chan struct{}
	submitRelease chan struct{}

	calls    map[string]int
	payloads []string
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		loginResp: models.LoginResponse{Status: models.StatusOK, TeamID: "ALPHA", NodeID: "SYS-01"},
		calls:     make(map[string]int),
	}
}

func (f *fakeAuthority) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAuthority) setStatus(st models.NodeStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeAuthority) Login(_ context.Context, _, _, _ string) (models.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["login"]++
	return f.loginResp, f.loginErr
}

func (f *fakeAuthority) Restore(_ context.Context, _, _ string) (models.RestoreResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["restore"]++
	return f.restoreResp, f.restoreErr
}

func (f *fakeAuthority) Status(_ context.Context, _, _ string) (models.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["status"]++
	return f.status, f.statusErr
}

func (f *fakeAuthority) Submit(_ context.Context, _, _, payload string) (models.SubmitResponse, error) {
	f.mu.Lock()
	f.calls["submit"]++
	f.payloads = append(f.payloads, payload)
	started, release := f.submitStarted, f.submitRelease
	var resp models.SubmitResponse
	if len(f.submits) > 0 {
		resp = f.submits[0]
		f.submits = f.submits[1:]
	}
	err := f.submitErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return resp, err
}

type inputState struct {
	enabled bool
	prompt  string
}

type recordSink struct {
	mu     sync.Mutex
	events []Event
	inputs []inputState
}

func (r *recordSink) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordSink) SetInput(enabled bool, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, inputState{enabled, prompt})
}

func (r *recordSink) lastInput() inputState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inputs) == 0 {
		return inputState{}
	}
	return r.inputs[len(r.inputs)-1]
}

func (r *recordSink) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, ev := range r.events {
		for _, l := range ev.Lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (r *recordSink) count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordSink) lastTimer() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == KindTimer {
			return r.events[i]
		}
	}
	return Event{}
}

func (r *recordSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.inputs = nil
}

// pollNow fetches and applies one status synchronously, as a poll tick would.
func (m *Machine) pollNow(ctx context.Context) {
	m.mu.Lock()
	gen, team, node, polling := m.gen, m.sess.TeamID, m.sess.NodeID, m.phase.Polling()
	m.mu.Unlock()
	if !polling {
		return
	}
	m.poller.Poll(ctx, team, node, func(st models.NodeStatus) { m.onStatus(gen, st) })
}

type harness struct {
	m       *Machine
	auth    *fakeAuthority
	sink    *recordSink
	backend *session.MemoryBackend
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		auth:    newFakeAuthority(),
		sink:    &recordSink{},
		backend: session.NewMemoryBackend(),
		clock:   clockwork.NewFakeClock(),
	}
	store := session.NewStore(h.backend, nil)
	cfg := Config{PollInterval: time.Hour, HintCooldown: 30 * time.Second}
	h.m = New(cfg, h.auth, store, h.sink, h.clock, nil)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) storedSession(t *testing.T) (session.Session, bool) {
	t.Helper()
	return session.NewStore(h.backend, nil).Load()
}

func scenarioStatus() models.NodeStatus {
	return models.NodeStatus{
		EventActive:          true,
		Authenticated:        true,
		Cipher:               "XYZZY",
		CipherType:           "CAESAR",
		Hints:                []string{"[HINT 1] shift by 3"},
		AttemptsRemaining:    intPtr(3),
		TimeRemainingSeconds: intPtr(600),
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.m.Start(ctx)
	require.Equal(t, phase.Login, h.m.Phase())
	require.NoError(t, h.m.Execute(ctx, "login alpha sys-01 ALPHA-NODE1-2024"))
	require.Equal(t, phase.Waiting, h.m.Phase())
}

func (h *harness) activate(t *testing.T, st models.NodeStatus) {
	t.Helper()
	h.login(t)
	h.auth.setStatus(st)
	h.m.pollNow(context.Background())
	require.Equal(t, phase.Active, h.m.Phase())
}

func TestStart_BootsWithoutSession(t *testing.T) {
	h := newHarness(t)

	h.m.Start(context.Background())

	assert.Equal(t, phase.Login, h.m.Phase())
	assert.Equal(t, inputState{true, "twinlock@auth:~$"}, h.sink.lastInput())
	assert.Zero(t, h.auth.count("restore"))
	assert.Contains(t, h.sink.text(), "[AUTH] Awaiting authentication...")
	assert.False(t, h.m.Snapshot().Polling)
}

func TestExecute_BusyDuringBoot(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.m.Execute(context.Background(), "help"), ErrBusy)
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)

	h.login(t)

	snap := h.m.Snapshot()
	assert.Equal(t, session.Session{TeamID: "ALPHA", NodeID: "SYS-01", AttemptsRemaining: 3}, snap.Session)
	assert.True(t, snap.Polling)
	assert.Equal(t, inputState{true, "SYS-01@twinlock:~$"}, h.sink.lastInput())

	stored, ok := h.storedSession(t)
	require.True(t, ok)
	assert.Equal(t, snap.Session, stored)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		setup     func(*fakeAuthority)
		wantErr   error
		wantCalls int
		wantText  string
	}{
		{
			name:      "rejected",
			line:      "login ALPHA SYS-01 WRONG",
			setup:     func(f *fakeAuthority) { f.loginResp = models.LoginResponse{Status: models.StatusFail} },
			wantErr:   ErrRejected,
			wantCalls: 1,
			wantText:  "Authentication failed",
		},
		{
			name:      "ok without identity",
			line:      "login ALPHA SYS-01 KEY",
			setup:     func(f *fakeAuthority) { f.loginResp = models.LoginResponse{Status: models.StatusOK} },
			wantErr:   ErrRejected,
			wantCalls: 1,
			wantText:  "Authentication failed",
		},
		{
			name:      "transport",
			line:      "login ALPHA SYS-01 KEY",
			setup:     func(f *fakeAuthority) { f.loginErr = errOffline },
			wantErr:   errOffline,
			wantCalls: 1,
			wantText:  "Cannot reach central authority",
		},
		{
			name:     "missing arguments",
			line:     "login ALPHA SYS-01",
			wantErr:  ErrUsage,
			wantText: "Usage: login",
		},
		{
			name:     "unknown verb",
			line:     "submit lock-41",
			wantErr:  ErrUnknownCommand,
			wantText: "command not available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h.auth)
			}
			h.m.Start(context.Background())

			err := h.m.Execute(context.Background(), tt.line)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, phase.Login, h.m.Phase())
			assert.Equal(t, tt.wantCalls, h.auth.count("login"))
			assert.Contains(t, h.sink.text(), tt.wantText)
			assert.Equal(t, inputState{true, "twinlock@auth:~$"}, h.sink.lastInput())
			_, ok := h.storedSession(t)
			assert.False(t, ok)
			assert.False(t, h.m.Snapshot().Polling)
		})
	}
}

func TestLoginPhase_HelpClearAndEmptyLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.m.Start(ctx)
	h.sink.reset()

	require.NoError(t, h.m.Execute(ctx, "  "))
	assert.Equal(t, inputState{true, "twinlock@auth:~$"}, h.sink.lastInput())

	require.NoError(t, h.m.Execute(ctx, "HELP"))
	assert.Contains(t, h.sink.text(), "login <teamId> <nodeId> <accessKey>")

	require.NoError(t, h.m.Execute(ctx, "clear"))
	assert.Equal(t, 1, h.sink.count(KindClear))
	assert.Contains(t, h.sink.text(), "[SYS] Secure node detected.")
	assert.Equal(t, phase.Login, h.m.Phase())
}

func TestWaiting_CommandsAreReadOnly(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	for _, line := range []string{"status", "time", "help", "clear"} {
		require.NoError(t, h.m.Execute(ctx, line), line)
	}
	assert.ErrorIs(t, h.m.Execute(ctx, "submit lock-41"), ErrUnknownCommand)
	assert.ErrorIs(t, h.m.Execute(ctx, "hint"), ErrUnknownCommand)

	assert.Equal(t, phase.Waiting, h.m.Phase())
	assert.Zero(t, h.auth.count("submit"))
	assert.Contains(t, h.sink.text(), "[SYS] Decryption Window: --:--")
}

func TestPoll_WaitingHoldsUntilEventStarts(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.auth.setStatus(models.NodeStatus{Authenticated: true, AttemptsRemaining: intPtr(3)})
	h.m.pollNow(context.Background())
	assert.Equal(t, phase.Waiting, h.m.Phase())

	h.auth.statusErr = errOffline
	h.m.pollNow(context.Background())
	assert.Equal(t, phase.Waiting, h.m.Phase())
	assert.True(t, h.m.Snapshot().Polling)
}

func TestScenario_ActivateHintAndAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.activate(t, scenarioStatus())

	snap := h.m.Snapshot()
	assert.Equal(t, "XYZZY", snap.Cipher)
	assert.Equal(t, "CAESAR", snap.CipherType)
	assert.Equal(t, [][]string{{"[HINT 1] shift by 3"}}, snap.HintGroups)
	assert.True(t, snap.TimerRunning)
	assert.Equal(t, 600, snap.TimerRemaining)
	assert.Equal(t, "10:00", h.sink.lastTimer().Timer)
	assert.Contains(t, h.sink.text(), "XYZZY")
	assert.Equal(t, inputState{true, "SYS-01@twinlock:~$"}, h.sink.lastInput())

	require.NoError(t, h.m.Execute(ctx, "hint"))
	text := h.sink.text()
	assert.Contains(t, text, "[HINT 1] shift by 3")
	assert.Contains(t, text, "submit lock-41")

	h.sink.reset()
	require.NoError(t, h.m.Execute(ctx, "hint"))
	assert.Contains(t, h.sink.text(), "All 1 hints have been revealed.")

	h.auth.submits = []models.SubmitResponse{
		{Status: models.StatusFail, AttemptsRemaining: intPtr(2)},
		{Status: models.StatusFail, AttemptsRemaining: intPtr(1)},
		{Status: models.StatusFail, AttemptsRemaining: intPtr(0)},
		{Status: models.StatusLocked},
	}
	for want := 2; want >= 0; want-- {
		err := h.m.Execute(ctx, "submit wrong-1")
		require.ErrorIs(t, err, ErrRejected)
		require.Equal(t, phase.Active, h.m.Phase())
		require.Equal(t, want, h.m.Snapshot().Session.AttemptsRemaining)
		stored, ok := h.storedSession(t)
		require.True(t, ok)
		require.Equal(t, want, stored.AttemptsRemaining)
	}

	require.NoError(t, h.m.Execute(ctx, "submit wrong-1"))

	snap = h.m.Snapshot()
	assert.Equal(t, phase.Locked, snap.Phase)
	assert.False(t, snap.Polling)
	assert.False(t, snap.TimerRunning)
	_, ok := h.storedSession(t)
	assert.False(t, ok)
	assert.Equal(t, 4, h.auth.count("submit"))
	assert.Equal(t, "LOCKED", h.sink.lastTimer().Timer)
}

func TestSubmit_Unlock(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())
	h.auth.submits = []models.SubmitResponse{{Status: models.StatusUnlock, FormLink: "https://forms.example/sync"}}

	require.NoError(t, h.m.Execute(context.Background(), "submit lock-41"))

	snap := h.m.Snapshot()
	assert.Equal(t, phase.Unlocked, snap.Phase)
	assert.Equal(t, "https://forms.example/sync", snap.FormLink)
	assert.False(t, snap.Polling)
	assert.False(t, snap.TimerRunning)
	assert.Contains(t, h.sink.text(), "[SYNC] Link: https://forms.example/sync")
	assert.Equal(t, []string{"lock-41"}, h.auth.payloads)
	assert.False(t, h.sink.lastInput().enabled)
	_, ok := h.storedSession(t)
	assert.False(t, ok)
}

func TestSubmit_UsageAndTransport(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())
	ctx := context.Background()

	assert.ErrorIs(t, h.m.Execute(ctx, "submit"), ErrUsage)
	assert.Zero(t, h.auth.count("submit"))

	h.auth.submitErr = errOffline
	assert.ErrorIs(t, h.m.Execute(ctx, "submit lock-41"), errOffline)
	assert.Equal(t, phase.Active, h.m.Phase())
	assert.Equal(t, 3, h.m.Snapshot().Session.AttemptsRemaining)
	assert.Contains(t, h.sink.text(), "Central authority unreachable")
	assert.True(t, h.sink.lastInput().enabled)
}

func TestSealed_NoAuthorityCalls(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())
	h.auth.submits = []models.SubmitResponse{{Status: models.StatusLocked}}
	ctx := context.Background()
	require.NoError(t, h.m.Execute(ctx, "submit x-1"))

	for _, line := range []string{"submit lock-41", "hint", "help", "login A B C", ""} {
		assert.ErrorIs(t, h.m.Execute(ctx, line), ErrSealed)
	}
	h.m.pollNow(ctx)

	assert.Equal(t, 1, h.auth.count("submit"))
	assert.Equal(t, 1, h.auth.count("status"))
	assert.Equal(t, phase.Locked, h.m.Phase())
}

func TestPoll_PartnerBroadcastOnce(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())

	st := scenarioStatus()
	st.PartnerUnlocked = true
	st.PartnerNodeID = "SYS-02"
	h.auth.setStatus(st)
	for i := 0; i < 3; i++ {
		h.m.pollNow(context.Background())
	}

	assert.Equal(t, 1, h.sink.count(KindBroadcast))
	assert.Contains(t, h.sink.text(), "Node SYS-02 has UNLOCKED")
	assert.True(t, h.m.Snapshot().PartnerNotified)
	assert.Equal(t, phase.Active, h.m.Phase())
}

func TestPoll_ActiveTerminalRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.NodeStatus)
		wantText string
	}{
		{"event ended", func(st *models.NodeStatus) { st.EventActive = false }, "DECRYPTION WINDOW CLOSED"},
		{"node locked", func(st *models.NodeStatus) { st.NodeLocked = true }, "SECURITY BREACH DETECTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.activate(t, scenarioStatus())
			st := scenarioStatus()
			tt.mutate(&st)
			h.auth.setStatus(st)

			h.m.pollNow(context.Background())

			snap := h.m.Snapshot()
			assert.Equal(t, phase.Locked, snap.Phase)
			assert.False(t, snap.Polling)
			assert.False(t, snap.TimerRunning)
			assert.Contains(t, h.sink.text(), tt.wantText)
			_, ok := h.storedSession(t)
			assert.False(t, ok)
		})
	}
}

func TestPoll_RefreshesAttemptsHintsAndTimer(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())

	st := scenarioStatus()
	st.Hints = nil
	st.HintGroups = [][]string{{"[HINT 1] a"}, {"[HINT 2] b"}}
	st.AttemptsRemaining = intPtr(2)
	st.TimeRemainingSeconds = intPtr(590)
	h.auth.setStatus(st)
	h.m.pollNow(context.Background())

	snap := h.m.Snapshot()
	assert.Equal(t, 590, snap.TimerRemaining)
	assert.Equal(t, 2, snap.Session.AttemptsRemaining)
	assert.Len(t, snap.HintGroups, 2)
	stored, _ := h.storedSession(t)
	assert.Equal(t, 2, stored.AttemptsRemaining)

	st.TimeRemainingSeconds = intPtr(588)
	h.auth.setStatus(st)
	h.m.pollNow(context.Background())
	assert.Equal(t, 590, h.m.Snapshot().TimerRemaining)
}

func TestPoll_TimerStartsOnLaterSync(t *testing.T) {
	h := newHarness(t)
	st := scenarioStatus()
	st.TimeRemainingSeconds = nil
	h.activate(t, st)
	require.False(t, h.m.Snapshot().TimerRunning)

	st.TimeRemainingSeconds = intPtr(300)
	h.auth.setStatus(st)
	h.m.pollNow(context.Background())

	snap := h.m.Snapshot()
	assert.True(t, snap.TimerRunning)
	assert.Equal(t, 300, snap.TimerRemaining)
	assert.Equal(t, "05:00", h.sink.lastTimer().Timer)
}

func TestTimer_ExpiryClosesWindow(t *testing.T) {
	h := newHarness(t)
	st := scenarioStatus()
	st.TimeRemainingSeconds = intPtr(1)
	h.activate(t, st)

	h.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return strings.Contains(h.sink.text(), "DECRYPTION WINDOW CLOSED")
	}, time.Second, time.Millisecond)
	assert.Equal(t, phase.Locked, h.m.Phase())
	assert.False(t, h.m.Snapshot().Polling)
	timerEv := h.sink.lastTimer()
	assert.Equal(t, "00:00", timerEv.Timer)
	assert.True(t, timerEv.Danger)
}

func TestTimer_StaleGenerationDropped(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())

	h.m.mu.Lock()
	h.m.timerGen = h.m.gen - 1
	h.m.mu.Unlock()
	before := h.sink.lastTimer().Timer

	h.m.onTimerTick(5)
	h.m.onTimerExpire()

	assert.Equal(t, phase.Active, h.m.Phase())
	assert.Equal(t, before, h.sink.lastTimer().Timer)
	assert.NotContains(t, h.sink.text(), "DECRYPTION WINDOW CLOSED")
}

func TestHint_Cooldown(t *testing.T) {
	h := newHarness(t)
	st := scenarioStatus()
	st.Hints = nil
	st.HintGroups = [][]string{{"[HINT 1] a"}, {"[HINT 2] b"}, {"[HINT 3] c"}}
	st.TimeRemainingSeconds = nil
	h.activate(t, st)
	ctx := context.Background()

	require.NoError(t, h.m.Execute(ctx, "hint"))
	h.sink.reset()
	require.NoError(t, h.m.Execute(ctx, "hint"))
	assert.Contains(t, h.sink.text(), "Hint 2 of 3 unlocks in: 30s")
	assert.Equal(t, 1, h.m.Snapshot().HintsRevealed)

	h.clock.Advance(30 * time.Second)
	h.sink.reset()
	require.NoError(t, h.m.Execute(ctx, "hint"))
	assert.Contains(t, h.sink.text(), "[HINT 2] b")
	assert.NotContains(t, h.sink.text(), "How to submit")
	assert.Equal(t, 2, h.m.Snapshot().HintsRevealed)
}

func TestActive_OtherCommands(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())
	ctx := context.Background()

	require.NoError(t, h.m.Execute(ctx, "status"))
	require.NoError(t, h.m.Execute(ctx, "time"))
	require.NoError(t, h.m.Execute(ctx, "help"))
	h.sink.reset()
	require.NoError(t, h.m.Execute(ctx, "clear"))
	assert.Contains(t, h.sink.text(), "XYZZY")
	assert.ErrorIs(t, h.m.Execute(ctx, "dance"), ErrUnknownCommand)
	assert.Equal(t, phase.Active, h.m.Phase())
}

func TestExecute_BusyWhileSubmitInFlight(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())
	h.auth.submitStarted = make(chan struct{})
	h.auth.submitRelease = make(chan struct{})
	h.auth.submits = []models.SubmitResponse{{Status: models.StatusFail, AttemptsRemaining: intPtr(2)}}
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.m.Execute(ctx, "submit wrong-1") }()
	<-h.auth.submitStarted

	assert.ErrorIs(t, h.m.Execute(ctx, "status"), ErrBusy)
	assert.False(t, h.sink.lastInput().enabled)

	close(h.auth.submitRelease)
	assert.ErrorIs(t, <-done, ErrRejected)
	assert.Equal(t, 1, h.auth.count("submit"))
	assert.True(t, h.sink.lastInput().enabled)
}

func TestSubmit_ResultDroppedAfterWindowClosed(t *testing.T) {
	h := newHarness(t)
	h.activate(t, scenarioStatus())
	h.auth.submitStarted = make(chan struct{})
	h.auth.submitRelease = make(chan struct{})
	h.auth.submits = []models.SubmitResponse{{Status: models.StatusUnlock, FormLink: "https://late"}}
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.m.Execute(ctx, "submit lock-41") }()
	<-h.auth.submitStarted

	st := scenarioStatus()
	st.EventActive = false
	h.auth.setStatus(st)
	h.m.pollNow(ctx)
	require.Equal(t, phase.Locked, h.m.Phase())

	close(h.auth.submitRelease)
	require.NoError(t, <-done)
	assert.Equal(t, phase.Locked, h.m.Phase())
	assert.NotContains(t, h.sink.text(), "https://late")
}

func TestOnStatus_StaleGenerationDropped(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.m.mu.Lock()
	stale := h.m.gen - 1
	h.m.mu.Unlock()
	h.m.onStatus(stale, scenarioStatus())

	assert.Equal(t, phase.Waiting, h.m.Phase())
}

func TestRestore_Valid(t *testing.T) {
	h := newHarness(t)
	session.NewStore(h.backend, nil).Persist(session.Session{TeamID: "ALPHA", NodeID: "SYS-01", AttemptsRemaining: 3})
	h.auth.restoreResp = models.RestoreResponse{Status: models.StatusOK, AttemptsRemaining: 2, EventActive: true}

	h.m.Start(context.Background())

	snap := h.m.Snapshot()
	assert.Equal(t, phase.Waiting, snap.Phase)
	assert.True(t, snap.Polling)
	assert.Equal(t, 2, snap.Session.AttemptsRemaining)
	assert.Equal(t, inputState{true, "SYS-01@twinlock:~$"}, h.sink.lastInput())
	text := h.sink.text()
	assert.Contains(t, text, "Session restored for ALPHA / SYS-01")
	assert.NotContains(t, text, "Secure node detected")

	h.auth.setStatus(scenarioStatus())
	h.m.pollNow(context.Background())
	assert.Equal(t, phase.Active, h.m.Phase())
}

func TestRestore_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeAuthority)
	}{
		{"rejected", func(f *fakeAuthority) { f.restoreResp = models.RestoreResponse{Status: models.StatusFail} }},
		{"offline", func(f *fakeAuthority) { f.restoreErr = errOffline }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			session.NewStore(h.backend, nil).Persist(session.Session{TeamID: "ALPHA", NodeID: "SYS-01", AttemptsRemaining: 3})
			tt.setup(h.auth)

			h.m.Start(context.Background())

			assert.Equal(t, phase.Login, h.m.Phase())
			assert.False(t, h.m.Snapshot().Polling)
			assert.Equal(t, 1, h.auth.count("restore"))
			_, ok := h.storedSession(t)
			assert.False(t, ok)
		})
	}
}
