package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/twinlock/internal/models"
	"github.com/atinyakov/twinlock/internal/service"
)

// EventService defines the operator operations required by the
// AdminHandler.
type EventService interface {
	Start(ctx context.Context, duration time.Duration) (models.Event, error)
	End(ctx context.Context) error
	Status(ctx context.Context, teams []string) (models.AdminStatus, error)
	// ResetNode returns service.ErrUnknownNode for a node that does not exist.
	ResetNode(ctx context.Context, teamID, nodeID string) error
}

// AdminHandler handles the operator endpoints under /api/admin.
type AdminHandler struct {
	EventService EventService
}

// StartRequest is the optional body of POST /api/admin/start.
type StartRequest struct {
	// DurationMinutes overrides the configured window length when positive.
	DurationMinutes int `json:"durationMinutes"`
}

// Start handles POST /api/admin/start. An empty body starts a window of the
// configured length.
func (h *AdminHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.DurationMinutes < 0 {
		http.Error(w, "durationMinutes must not be negative", http.StatusBadRequest)
		return
	}

	ev, err := h.EventService.Start(r.Context(), time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"status":          "started",
		"runId":           ev.RunID,
		"durationMinutes": int(ev.Duration / time.Minute),
	})
}

// End handles POST /api/admin/end.
func (h *AdminHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.EventService.End(r.Context()); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ended"})
}

// Status handles GET /api/admin/status. The optional team query parameter
// is a comma-separated list of teams to include.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	var teams []string
	for _, t := range strings.Split(r.URL.Query().Get("team"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			teams = append(teams, t)
		}
	}

	st, err := h.EventService.Status(r.Context(), teams)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

// ResetNode handles POST /api/admin/reset-node.
func (h *AdminHandler) ResetNode(w http.ResponseWriter, r *http.Request) {
	var req models.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeamID == "" || req.NodeID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	err := h.EventService.ResetNode(r.Context(), req.TeamID, req.NodeID)
	switch {
	case errors.Is(err, service.ErrUnknownNode):
		http.Error(w, "node not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		writeJSON(w, map[string]string{"status": "reset"})
	}
}
