package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atinyakov/twinlock/internal/client/authority"
	"github.com/atinyakov/twinlock/internal/client/console"
	"github.com/atinyakov/twinlock/internal/client/session"
	"github.com/atinyakov/twinlock/internal/client/terminal"
	"github.com/atinyakov/twinlock/internal/config"
	"github.com/atinyakov/twinlock/internal/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

// executor runs one operator line.
type executor interface {
	Execute(ctx context.Context, line string) error
}

// inputGate blocks until the display accepts input again.
type inputGate interface {
	WaitInput(ctx context.Context) error
}

// repl feeds operator lines from in to the machine until in closes, the
// operator types exit, or ctx is cancelled. Each line waits for the display
// to re-enable input, so keystrokes typed during a banner run in order once
// it completes.
func repl(ctx context.Context, in io.Reader, m executor, gate inputGate, log *zap.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.EqualFold(strings.TrimSpace(line), "exit") {
				return
			}
			if err := gate.WaitInput(ctx); err != nil {
				return
			}
			err := m.Execute(ctx, line)
			switch {
			case err == nil:
			case errors.Is(err, terminal.ErrBusy):
				log.Debug("input ignored while busy", zap.String("line", line))
			default:
				log.Debug("command finished", zap.String("line", line), zap.Error(err))
			}
		}
	}
}

// main parses the configuration and runs the node terminal.
func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("TwinLock Terminal\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	opts, err := config.ParseClient(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	l := logger.New()
	if err := l.InitFile(opts.LogLevel, opts.LogFile); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Log.Sync() }()

	httpClient, err := authority.NewHTTPClient(opts.CA, opts.Timeout)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	con := console.New(os.Stdout, clock, opts.TypeDelay, !opts.NoColor)
	con.Start(ctx)
	defer con.Close()

	store := session.NewStore(session.NewFileBackend(opts.StateDir, opts.Instance), l.Log)
	m := terminal.New(terminal.Config{
		PollInterval: opts.Poll,
		HintCooldown: opts.HintCooldown,
	}, authority.New(opts.URL, httpClient), store, con, clock, l.Log)
	defer m.Close()

	l.Log.Info("terminal starting",
		zap.String("authority", opts.URL),
		zap.String("instance", opts.Instance),
		zap.String("version", version),
	)

	m.Start(ctx)
	repl(ctx, os.Stdin, m, con, l.Log)
}
