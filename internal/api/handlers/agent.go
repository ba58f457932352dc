package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/updraft/internal/command"
	"github.com/go-chi/chi/v5"
)

// AgentHandler is the agent-facing surface: heartbeats in, pending
// commands out, acknowledgements back.
type AgentHandler struct {
	queue  *command.Queue
	status *command.StatusBoard
}

func NewAgentHandler(queue *command.Queue, status *command.StatusBoard) *AgentHandler {
	return &AgentHandler{queue: queue, status: status}
}

type heartbeatRequest struct {
	Version   string `json:"version,omitempty"`
	BackupRef string `json:"backup_ref,omitempty"`
}

// Heartbeat records agent liveness. The body optionally carries the
// version the agent currently runs and a backup it just finished writing.
func (h *AgentHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req heartbeatRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	h.status.ReportHeartbeat(agentID, req.Version)
	if req.BackupRef != "" {
		h.status.ReportBackup(agentID, req.BackupRef)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending_commands": h.queue.PendingCount(agentID),
	})
}

// Commands returns the agent's pending command queue without consuming it.
func (h *AgentHandler) Commands(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": h.queue.Poll(agentID),
	})
}

// Ack removes an executed command from the agent's queue.
func (h *AgentHandler) Ack(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	commandID := chi.URLParam(r, "commandID")

	if !h.queue.Ack(agentID, commandID) {
		writeError(w, http.StatusNotFound, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
