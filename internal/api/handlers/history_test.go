package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/Harshitk-cp/updraft/internal/service"
	"github.com/Harshitk-cp/updraft/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// getWithParam invokes a handler with one chi URL parameter set, the way
// the router would.
func getWithParam(h http.HandlerFunc, key, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

type fakeVersionStore struct {
	agents map[string]domain.AgentVersion
}

func (f *fakeVersionStore) Upsert(ctx context.Context, v *domain.AgentVersion) error {
	f.agents[v.AgentID] = *v
	return nil
}

func (f *fakeVersionStore) GetByAgentID(ctx context.Context, agentID string) (*domain.AgentVersion, error) {
	v, ok := f.agents[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (f *fakeVersionStore) List(ctx context.Context) ([]domain.AgentVersion, error) {
	out := make([]domain.AgentVersion, 0, len(f.agents))
	for _, v := range f.agents {
		out = append(out, v)
	}
	return out, nil
}

type fakeUpdateStore struct {
	updates map[string]domain.AgentUpdate
}

func (f *fakeUpdateStore) Upsert(ctx context.Context, u *domain.AgentUpdate) error {
	f.updates[u.ID] = *u
	return nil
}

func (f *fakeUpdateStore) GetByID(ctx context.Context, id string) (*domain.AgentUpdate, error) {
	u, ok := f.updates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUpdateStore) ListByAgent(ctx context.Context, agentID string) ([]domain.AgentUpdate, error) {
	var out []domain.AgentUpdate
	for _, u := range f.updates {
		if u.AgentID == agentID {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeRollbackStore struct {
	ops []domain.RollbackOperation
}

func (f *fakeRollbackStore) Upsert(ctx context.Context, op *domain.RollbackOperation) error {
	f.ops = append(f.ops, *op)
	return nil
}

func (f *fakeRollbackStore) ListByAgent(ctx context.Context, agentID string) ([]domain.RollbackOperation, error) {
	var out []domain.RollbackOperation
	for _, op := range f.ops {
		if op.AgentID == agentID {
			out = append(out, op)
		}
	}
	return out, nil
}

func newTestRegistry() *service.VersionRegistry {
	logger := zap.NewNop()
	return service.NewVersionRegistry(nil, service.NewBestEffortPersist(logger), logger)
}

func TestGetAgentFallsBackToDurableMirror(t *testing.T) {
	versions := &fakeVersionStore{agents: map[string]domain.AgentVersion{
		"agent-old": {AgentID: "agent-old", Version: "1.8.0", UpdateChannel: domain.ChannelStable},
	}}
	h := NewVersionHandler(newTestRegistry(), versions)

	// Not in the live registry, but mirrored before the last restart.
	rec := getWithParam(h.GetAgent, "agentID", "agent-old")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.AgentVersion
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "1.8.0", got.Version)

	// Unknown everywhere.
	rec = getWithParam(h.GetAgent, "agentID", "agent-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAgentsMergesDurableMirror(t *testing.T) {
	registry := newTestRegistry()
	live := registry.Register(context.Background(), &domain.AgentVersion{AgentID: "agent-1", Version: "2.0.0"})

	versions := &fakeVersionStore{agents: map[string]domain.AgentVersion{
		"agent-1":   {AgentID: "agent-1", Version: "1.9.0"}, // stale mirror of the live agent
		"agent-old": {AgentID: "agent-old", Version: "1.8.0"},
	}}
	h := NewVersionHandler(registry, versions)

	rec := getWithParam(h.ListAgents, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Agents []domain.AgentVersion `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Agents, 2)

	byID := make(map[string]string)
	for _, a := range resp.Agents {
		byID[a.AgentID] = a.Version
	}
	// The live registry wins over the stale mirror.
	assert.Equal(t, live.Version, byID["agent-1"])
	assert.Equal(t, "1.8.0", byID["agent-old"])
}

func TestUpdateHistoryMergesDurableRecords(t *testing.T) {
	jobs := service.NewJobTable()
	liveJob := &domain.AgentUpdate{
		ID:      "upd-live",
		AgentID: "agent-1",
		Status:  domain.StatusScheduled,
	}
	require.NoError(t, jobs.TrySchedule(liveJob))

	updates := &fakeUpdateStore{updates: map[string]domain.AgentUpdate{
		"upd-live":  {ID: "upd-live", AgentID: "agent-1", Status: domain.StatusDownloading}, // stale mirror
		"upd-old":   {ID: "upd-old", AgentID: "agent-1", Status: domain.StatusCompleted},
		"upd-other": {ID: "upd-other", AgentID: "agent-2", Status: domain.StatusCompleted},
	}}
	h := NewUpdateHandler(nil, jobs, nil, nil, nil, updates)

	rec := getWithParam(h.History, "agentID", "agent-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Updates []domain.AgentUpdate `json:"updates"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Updates, 2)

	byID := make(map[string]domain.UpdateStatus)
	for _, u := range resp.Updates {
		byID[u.ID] = u.Status
	}
	// The live table wins over its durable mirror; pre-restart records
	// come from the mirror alone.
	assert.Equal(t, domain.StatusScheduled, byID["upd-live"])
	assert.Equal(t, domain.StatusCompleted, byID["upd-old"])
}

func TestGetUpdateFallsBackToDurableMirror(t *testing.T) {
	jobs := service.NewJobTable()
	updates := &fakeUpdateStore{updates: map[string]domain.AgentUpdate{
		"upd-old": {ID: "upd-old", AgentID: "agent-1", Status: domain.StatusCompleted},
	}}
	h := NewUpdateHandler(nil, jobs, nil, nil, nil, updates)

	rec := getWithParam(h.GetByID, "updateID", "upd-old")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.AgentUpdate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, domain.StatusCompleted, got.Status)

	rec = getWithParam(h.GetByID, "updateID", "upd-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRollbackHistoryMergesDurableRecords(t *testing.T) {
	jobs := service.NewJobTable()
	jobs.AddRollback(&domain.RollbackOperation{
		ID:      "rb-live",
		AgentID: "agent-1",
		Status:  domain.RollbackStatusCompleted,
	})

	rollbacks := &fakeRollbackStore{ops: []domain.RollbackOperation{
		{ID: "rb-live", AgentID: "agent-1", Status: domain.RollbackStatusExecuting}, // stale mirror
		{ID: "rb-old", AgentID: "agent-1", Status: domain.RollbackStatusFailed},
	}}
	h := NewRollbackHandler(nil, jobs, rollbacks)

	rec := getWithParam(h.History, "agentID", "agent-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rollbacks []domain.RollbackOperation `json:"rollbacks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Rollbacks, 2)

	byID := make(map[string]domain.RollbackStatus)
	for _, op := range resp.Rollbacks {
		byID[op.ID] = op.Status
	}
	assert.Equal(t, domain.RollbackStatusCompleted, byID["rb-live"])
	assert.Equal(t, domain.RollbackStatusFailed, byID["rb-old"])
}
