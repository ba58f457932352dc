package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/Harshitk-cp/updraft/internal/service"
	"github.com/go-chi/chi/v5"
)

type RollbackHandler struct {
	coordinator *service.RollbackCoordinator
	jobs        *service.JobTable
	rollbacks   domain.RollbackStore
}

func NewRollbackHandler(coordinator *service.RollbackCoordinator, jobs *service.JobTable, rollbacks domain.RollbackStore) *RollbackHandler {
	return &RollbackHandler{coordinator: coordinator, jobs: jobs, rollbacks: rollbacks}
}

type initiateRollbackRequest struct {
	AgentID       string `json:"agent_id"`
	TargetVersion string `json:"target_version,omitempty"`
}

// Initiate starts a manual rollback from the agent's most recent completed
// update that recorded a backup. target_version overrides the default
// restore target.
func (h *RollbackHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	op, err := h.coordinator.Manual(r.Context(), req.AgentID, req.TargetVersion, "operator")
	if err != nil {
		if op == nil {
			// No completed update with a backup to restore from.
			if errors.Is(err, service.ErrRollback) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to roll back")
			return
		}
		// The rollback ran and failed; the operation record carries the
		// failure detail.
		writeJSON(w, http.StatusBadGateway, op)
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// History lists every rollback recorded for an agent: live records overlaid
// on the durable mirror, so pre-restart operations still show up.
func (h *RollbackHandler) History(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	ops := h.jobs.RollbacksFor(agentID)
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		seen[op.ID] = true
	}

	if h.rollbacks != nil {
		stored, err := h.rollbacks.ListByAgent(r.Context(), agentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load rollback history")
			return
		}
		for _, op := range stored {
			if !seen[op.ID] {
				ops = append(ops, op)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":  agentID,
		"rollbacks": ops,
	})
}
