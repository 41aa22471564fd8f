package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/twinlock/internal/models"
)

// NodeService defines the node operations required by the NodeHandler.
type NodeService interface {
	Status(ctx context.Context, teamID, nodeID string) (models.NodeStatus, error)
	Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResponse, error)
}

// NodeHandler handles status polls and submissions.
type NodeHandler struct {
	NodeService NodeService
}

// Status handles GET /api/node/status?teamId=&nodeId=.
func (h *NodeHandler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	teamID, nodeID := q.Get("teamId"), q.Get("nodeId")
	if teamID == "" || nodeID == "" {
		http.Error(w, "teamId and nodeId are required", http.StatusBadRequest)
		return
	}

	st, err := h.NodeService.Status(r.Context(), teamID, nodeID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

// Submit handles POST /api/node/submit.
func (h *NodeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeamID == "" || req.NodeID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	resp, err := h.NodeService.Submit(r.Context(), req)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}
