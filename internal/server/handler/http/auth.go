// Package http provides the authority's HTTP handlers and router.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/twinlock/internal/models"
)

// AuthService defines the authentication operations required by the HTTP
// handlers.
type AuthService interface {
	// Login checks an access key. A rejection is a FAIL response, not an
	// error.
	Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error)
	// Restore revalidates an identity a terminal persisted earlier.
	Restore(ctx context.Context, req models.RestoreRequest) (models.RestoreResponse, error)
}

// AuthHandler handles terminal login and restore requests.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
}

// Login handles POST /api/auth/login. It expects teamId, nodeId and
// accessKey; a missing field is answered with 400.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.TeamID == "" || req.NodeID == "" || req.AccessKey == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	resp, err := h.AuthService.Login(r.Context(), req)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

// Restore handles POST /api/auth/restore.
func (h *AuthHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req models.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeamID == "" || req.NodeID == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	resp, err := h.AuthService.Restore(r.Context(), req)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
