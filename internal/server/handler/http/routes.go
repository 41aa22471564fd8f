package http

import (
	"net/http"

	"github.com/atinyakov/twinlock/internal/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds the router settings that do not come from handlers.
type RouterConfig struct {
	// AdminKey guards /api/admin. Empty disables the admin API.
	AdminKey string
	// CORSOrigins enables CORS for the listed origins when not empty.
	CORSOrigins []string
}

// NewRouter constructs and returns an HTTP handler that serves the
// authority API.
//
// Routes:
//
//	POST /api/auth/login         → authHandler.Login
//	POST /api/auth/restore       → authHandler.Restore
//	GET  /api/node/status        → nodeHandler.Status
//	POST /api/node/submit        → nodeHandler.Submit
//	POST /api/admin/start        → adminHandler.Start (X-Admin-Key)
//	POST /api/admin/end          → adminHandler.End (X-Admin-Key)
//	GET  /api/admin/status       → adminHandler.Status (X-Admin-Key)
//	POST /api/admin/reset-node   → adminHandler.ResetNode (X-Admin-Key)
//	GET  /healthz
func NewRouter(
	authHandler *AuthHandler,
	nodeHandler *NodeHandler,
	adminHandler *AdminHandler,
	cfg RouterConfig,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	// Only allow request bodies with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/restore", authHandler.Restore)

		r.Get("/node/status", nodeHandler.Status)
		r.Post("/node/submit", nodeHandler.Submit)

		// Operator group: requires the admin key
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKey(cfg.AdminKey))
			r.Post("/start", adminHandler.Start)
			r.Post("/end", adminHandler.End)
			r.Get("/status", adminHandler.Status)
			r.Post("/reset-node", adminHandler.ResetNode)
		})
	})

	if len(cfg.CORSOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedOrigins: cfg.CORSOrigins,
		AllowedHeaders: []string{"Content-Type", middleware.AdminKeyHeader},
	})
	return c.Handler(r)
}
