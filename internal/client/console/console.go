// Package console renders terminal events on a text stream.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/atinyakov/twinlock/internal/client/terminal"
	"github.com/common-nighthawk/go-figure"
	"github.com/jonboulle/clockwork"
)

// DefaultTypeDelay is the pause after each typed line.
const DefaultTypeDelay = 40 * time.Millisecond

const figureFont = "cybermedium"

const ansiReset = "\033[0m"

var toneColors = map[terminal.Tone]string{
	terminal.ToneInfo:    "\033[36m",
	terminal.ToneWarn:    "\033[33m",
	terminal.ToneError:   "\033[31m",
	terminal.ToneSuccess: "\033[32m",
	terminal.ToneMuted:   "\033[90m",
	terminal.ToneCipher:  "\033[1;32m",
}

// Console is a terminal.Sink. Emit and SetInput only queue work; a single
// goroutine started by Start writes to out, so slow typing never holds up
// the caller.
type Console struct {
	out       io.Writer
	clock     clockwork.Clock
	typeDelay time.Duration
	color     bool

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	started bool
	closing bool
	ready   chan struct{}

	// render state, owned by the run goroutine
	inputOn     bool
	prompt      string
	promptShown bool
	timer       string
	danger      bool
}

// New returns a console writing to out. typeDelay 0 prints typed lines at once.
func New(out io.Writer, clock clockwork.Clock, typeDelay time.Duration, color bool) *Console {
	return &Console{
		out:       out,
		clock:     clock,
		typeDelay: typeDelay,
		color:     color,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		timer:     "--:--",
	}
}

// Start launches the writer goroutine. It stops when ctx is done or Close
// is called.
func (c *Console) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.run(ctx)
}

// Close writes everything queued so far and stops the writer.
func (c *Console) Close() {
	c.mu.Lock()
	if !c.started || c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.mu.Unlock()
	c.signal()
	<-c.done
}

// Emit queues ev for display.
func (c *Console) Emit(ev terminal.Event) {
	c.push(func() { c.render(ev) })
}

// SetInput queues an input state change. The prompt is shown once all
// output queued before it has been written.
func (c *Console) SetInput(enabled bool, prompt string) {
	c.push(func() {
		c.inputOn = enabled
		if enabled {
			c.prompt = prompt
		}
		c.promptShown = false
		c.setReady(enabled)
	})
}

// WaitInput blocks until everything queued before the call has been
// written and the terminal accepts input, or ctx is done.
func (c *Console) WaitInput(ctx context.Context) error {
	drained := make(chan struct{})
	c.push(func() { close(drained) })
	select {
	case <-drained:
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	ch := c.ready
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Console) setReady(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ready:
		if !enabled {
			c.ready = make(chan struct{})
		}
	default:
		if enabled {
			close(c.ready)
		}
	}
}

func (c *Console) push(fn func()) {
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	c.mu.Unlock()
	c.signal()
}

func (c *Console) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Console) run(ctx context.Context) {
	defer close(c.done)
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		closing := c.closing
		c.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			if c.inputOn && !c.promptShown {
				c.showPrompt()
			}
			continue
		}
		if closing {
			return
		}
		select {
		case <-c.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Console) showPrompt() {
	fmt.Fprintf(c.out, "%s %s ", c.paint(c.timerTone(), "["+c.timer+"]"), c.paint(terminal.ToneWarn, c.prompt))
	c.promptShown = true
}

func (c *Console) timerTone() terminal.Tone {
	if c.danger {
		return terminal.ToneError
	}
	return terminal.ToneWarn
}

// breakPrompt moves output that arrives while the prompt is showing to its
// own line.
func (c *Console) breakPrompt() {
	if c.promptShown {
		fmt.Fprintln(c.out)
		c.promptShown = false
	}
}

func (c *Console) render(ev terminal.Event) {
	switch ev.Kind {
	case terminal.KindTimer:
		c.timer = ev.Timer
		c.danger = ev.Danger
		return
	case terminal.KindClear:
		c.breakPrompt()
		fmt.Fprint(c.out, "\033[H\033[2J")
		return
	}

	c.breakPrompt()
	switch ev.Kind {
	case terminal.KindLine:
		c.writeLines(ev.Tone, ev.Lines, ev.Typed)
	case terminal.KindBanner:
		fmt.Fprintln(c.out)
		if ev.Figure != "" {
			fig := figure.NewFigure(ev.Figure, figureFont, true)
			c.writeLines(ev.Tone, fig.Slicify(), false)
		}
		c.writeLines(ev.Tone, frame(ev.Lines), ev.Typed)
		fmt.Fprintln(c.out)
	case terminal.KindBroadcast:
		fmt.Fprintln(c.out)
		if len(ev.Lines) > 0 {
			c.writeLines(ev.Tone, frame(ev.Lines[:1]), false)
			c.writeLines(ev.Tone, ev.Lines[1:], false)
		}
		fmt.Fprintln(c.out)
	case terminal.KindHUD:
		c.writeLines(terminal.ToneMuted, []string{hudLine(ev.HUD)}, false)
	}
}

func (c *Console) writeLines(tone terminal.Tone, lines []string, typed bool) {
	for _, l := range lines {
		fmt.Fprintln(c.out, c.paint(tone, l))
		if typed && c.typeDelay > 0 {
			c.clock.Sleep(c.typeDelay)
		}
	}
}

func (c *Console) paint(tone terminal.Tone, s string) string {
	code, ok := toneColors[tone]
	if !c.color || !ok || s == "" {
		return s
	}
	return code + s + ansiReset
}

func frame(lines []string) []string {
	width := 0
	for _, l := range lines {
		width = max(width, utf8.RuneCountInString(l))
	}
	width += 4
	out := make([]string, 0, len(lines)+2)
	out = append(out, "╔"+strings.Repeat("═", width)+"╗")
	for _, l := range lines {
		pad := width - utf8.RuneCountInString(l)
		out = append(out, "║"+strings.Repeat(" ", pad/2)+l+strings.Repeat(" ", pad-pad/2)+"║")
	}
	out = append(out, "╚"+strings.Repeat("═", width)+"╝")
	return out
}

func hudLine(h terminal.HUD) string {
	team, node := h.TeamID, h.NodeID
	if team == "" {
		team = "-"
	}
	if node == "" {
		node = "-"
	}
	used := h.MaxAttempts - h.AttemptsRemaining
	var dots strings.Builder
	for i := 0; i < h.MaxAttempts; i++ {
		if i < used {
			dots.WriteString("●")
		} else {
			dots.WriteString("○")
		}
	}
	return fmt.Sprintf("TEAM: %s | NODE: %s | ATTEMPTS: %s %d/%d",
		team, node, dots.String(), h.AttemptsRemaining, h.MaxAttempts)
}
