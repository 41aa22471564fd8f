// Package main initializes and starts the TwinLock rehearsal authority,
// setting up configuration, logging, the database, the puzzle seed,
// repositories, services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/twinlock/internal/config"
	"github.com/atinyakov/twinlock/internal/db"
	"github.com/atinyakov/twinlock/internal/logger"
	"github.com/atinyakov/twinlock/internal/repository"
	"github.com/atinyakov/twinlock/internal/seed"
	"github.com/atinyakov/twinlock/internal/server/handler/http"
	"github.com/atinyakov/twinlock/internal/service"
	"github.com/common-nighthawk/go-figure"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, file and environment configuration.
	options, err := config.ParseServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	figure.NewFigure("TWINLOCK", "cybermedium", true).Print()
	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	clock := clockwork.NewRealClock()

	// Close elapsed windows in the stored row.
	db.StartWindowCloser(ctx, postgresDB, clock, 5*time.Second, zapLogger)

	// Initialize repositories.
	nodeRepo := repository.NewPostgresNodeRepository(postgresDB)
	eventRepo := repository.NewPostgresEventRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(nodeRepo, eventRepo, clock)
	nodeService := service.NewNodeService(nodeRepo, eventRepo, clock)
	eventService := service.NewEventService(nodeRepo, eventRepo, clock, options.Window, zapLogger)

	// Seed the puzzles.
	nodes, err := seed.Load(options.Puzzles)
	switch {
	case errors.Is(err, os.ErrNotExist):
		zapLogger.Warn("no puzzle file, serving existing nodes", zap.String("path", options.Puzzles))
	case err != nil:
		zapLogger.Fatal("cannot load puzzles", zap.Error(err))
	default:
		if err := eventService.Seed(ctx, nodes); err != nil {
			zapLogger.Fatal("cannot seed puzzles", zap.Error(err))
		}
	}
	if options.AdminKey == "" {
		zapLogger.Warn("admin key not set, admin API disabled")
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(
		&http.AuthHandler{AuthService: authService},
		&http.NodeHandler{NodeService: nodeService},
		&http.AdminHandler{EventService: eventService},
		http.RouterConfig{AdminKey: options.AdminKey, CORSOrigins: options.CORSOrigins},
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := options.TLSCert != "" && options.TLSKey != ""
	if useTLS {
		// Load server TLS certificate and key.
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting authority", zap.String("addr", options.Port), zap.Bool("tls", useTLS))
	if useTLS {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
	zapLogger.Info("authority stopped")
}
