package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/Harshitk-cp/updraft/internal/service"
	"github.com/Harshitk-cp/updraft/internal/store"
	"github.com/go-chi/chi/v5"
)

type VersionHandler struct {
	registry *service.VersionRegistry
	versions domain.AgentVersionStore
}

func NewVersionHandler(registry *service.VersionRegistry, versions domain.AgentVersionStore) *VersionHandler {
	return &VersionHandler{registry: registry, versions: versions}
}

type reportVersionRequest struct {
	AgentID       string            `json:"agent_id"`
	Version       string            `json:"version"`
	BuildNumber   int               `json:"build_number,omitempty"`
	CommitHash    string            `json:"commit_hash,omitempty"`
	BuildDate     time.Time         `json:"build_date,omitempty"`
	Capabilities  []string          `json:"capabilities,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	Features      []string          `json:"features,omitempty"`
	Platform      string            `json:"platform,omitempty"`
	Architecture  string            `json:"architecture,omitempty"`
	UpdateChannel string            `json:"update_channel,omitempty"`
}

// Report registers or overwrites an agent's version metadata and triggers
// an immediate eligibility pass for that agent.
func (h *VersionHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.Version == "" {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}
	if req.UpdateChannel != "" && !domain.ValidChannel(req.UpdateChannel) {
		writeError(w, http.StatusBadRequest, "invalid update_channel")
		return
	}

	v := h.registry.Register(r.Context(), &domain.AgentVersion{
		AgentID:       req.AgentID,
		Version:       req.Version,
		BuildNumber:   req.BuildNumber,
		CommitHash:    req.CommitHash,
		BuildDate:     req.BuildDate,
		Capabilities:  req.Capabilities,
		Dependencies:  req.Dependencies,
		Features:      req.Features,
		Platform:      req.Platform,
		Architecture:  req.Architecture,
		UpdateChannel: domain.Channel(req.UpdateChannel),
	})

	writeJSON(w, http.StatusOK, v)
}

// GetAgent returns the live tracked version for an agent, falling back to
// the durable mirror for agents that have not reported since the last
// restart.
func (h *VersionHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	v, ok := h.registry.Get(agentID)
	if !ok {
		if h.versions != nil {
			stored, err := h.versions.GetByAgentID(r.Context(), agentID)
			if err == nil {
				writeJSON(w, http.StatusOK, stored)
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, "failed to load agent version")
				return
			}
		}
		writeError(w, http.StatusNotFound, "agent version unknown")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListAgents merges the live registry with the durable mirror so the fleet
// view survives restarts; live entries win.
func (h *VersionHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.All()

	if h.versions != nil {
		seen := make(map[string]bool, len(agents))
		for _, a := range agents {
			seen[a.AgentID] = true
		}
		stored, err := h.versions.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load agent versions")
			return
		}
		for _, a := range stored {
			if !seen[a.AgentID] {
				agents = append(agents, a)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
	})
}
