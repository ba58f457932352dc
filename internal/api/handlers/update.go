package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/Harshitk-cp/updraft/internal/service"
	"github.com/Harshitk-cp/updraft/internal/store"
	"github.com/go-chi/chi/v5"
)

type UpdateHandler struct {
	scheduler *service.Scheduler
	jobs      *service.JobTable
	catalog   *service.UpdateCatalog
	registry  *service.VersionRegistry
	eval      *service.Evaluator
	updates   domain.UpdateStore
}

func NewUpdateHandler(scheduler *service.Scheduler, jobs *service.JobTable, catalog *service.UpdateCatalog, registry *service.VersionRegistry, eval *service.Evaluator, updates domain.UpdateStore) *UpdateHandler {
	return &UpdateHandler{
		scheduler: scheduler,
		jobs:      jobs,
		catalog:   catalog,
		registry:  registry,
		eval:      eval,
		updates:   updates,
	}
}

// Check lists the packages an agent is currently eligible for, without
// scheduling anything.
func (h *UpdateHandler) Check(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	agent, ok := h.registry.Get(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "agent version unknown")
		return
	}

	hasActive := h.jobs.HasActive(agentID)
	eligible := []domain.UpdatePackage{}
	for _, pkg := range h.catalog.Packages() {
		if h.eval.ShouldUpdate(agent, &pkg, hasActive) {
			eligible = append(eligible, pkg)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":          agentID,
		"current_version":   agent.Version,
		"has_active_update": hasActive,
		"eligible_packages": eligible,
	})
}

// Available lists discovered packages, optionally filtered by channel.
func (h *UpdateHandler) Available(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel != "" && !domain.ValidChannel(channel) {
		writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	packages := []domain.UpdatePackage{}
	for _, pkg := range h.catalog.Packages() {
		if channel == "" || pkg.Channel == domain.Channel(channel) {
			packages = append(packages, pkg)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": packages})
}

type scheduleUpdateRequest struct {
	AgentID   string `json:"agent_id"`
	PackageID string `json:"package_id"`
}

// Schedule creates an update job for an agent regardless of the automatic
// policy; operators use it to push manual-approval updates.
func (h *UpdateHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "agent_id and package_id are required")
		return
	}

	job, err := h.scheduler.Schedule(r.Context(), req.AgentID, req.PackageID, "operator")
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAgentUnknown), errors.Is(err, service.ErrPackageUnknown):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrUpdateInFlight):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to schedule update")
		}
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (h *UpdateHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"updates": h.jobs.Active()})
}

// GetByID returns one update, falling back to the durable mirror for
// updates that predate the current process.
func (h *UpdateHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	updateID := chi.URLParam(r, "updateID")

	job, ok := h.jobs.Get(updateID)
	if !ok {
		if h.updates != nil {
			stored, err := h.updates.GetByID(r.Context(), updateID)
			if err == nil {
				writeJSON(w, http.StatusOK, stored)
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, "failed to load update")
				return
			}
		}
		writeError(w, http.StatusNotFound, "update not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// History lists every update recorded for an agent: the live table overlaid
// on the durable mirror, so pre-restart attempts still show up.
func (h *UpdateHandler) History(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	updates := []domain.AgentUpdate{}
	seen := make(map[string]bool)
	for _, u := range h.jobs.Updates() {
		if u.AgentID == agentID {
			updates = append(updates, u)
			seen[u.ID] = true
		}
	}

	if h.updates != nil {
		stored, err := h.updates.ListByAgent(r.Context(), agentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load update history")
			return
		}
		for _, u := range stored {
			if !seen[u.ID] {
				updates = append(updates, u)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": agentID,
		"updates":  updates,
	})
}

func (h *UpdateHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.Cancel(r.Context(), chi.URLParam(r, "updateID"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUpdateNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrNotCancellable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to cancel update")
		}
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// EmergencyStop cancels every job still inside its cancellation window.
func (h *UpdateHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	cancelled := h.scheduler.CancelAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}
