package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"go.uber.org/zap"
)

// VersionRegistry is the source of truth for what is running on each agent
// right now. It is the only component that mutates AgentVersion, and the
// only field a successful update or rollback mutates is Version (plus
// LastSeen).
type VersionRegistry struct {
	mu     sync.RWMutex
	agents map[string]*domain.AgentVersion

	store   domain.AgentVersionStore
	persist *BestEffortPersist
	logger  *zap.Logger

	// onRegister runs the single-agent eligibility pass after every
	// version report. Set by the scheduler during wiring.
	onRegister func(agentID string)

	now func() time.Time
}

func NewVersionRegistry(store domain.AgentVersionStore, persist *BestEffortPersist, logger *zap.Logger) *VersionRegistry {
	return &VersionRegistry{
		agents:  make(map[string]*domain.AgentVersion),
		store:   store,
		persist: persist,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *VersionRegistry) SetOnRegister(fn func(agentID string)) {
	r.onRegister = fn
}

// Register creates or overwrites the tracked version for an agent from
// reported metadata, then triggers a single-agent eligibility pass.
func (r *VersionRegistry) Register(ctx context.Context, v *domain.AgentVersion) *domain.AgentVersion {
	now := r.now()
	if v.UpdateChannel == "" {
		v.UpdateChannel = domain.ChannelStable
	}
	if v.Platform == "" {
		v.Platform = "unknown"
	}
	if v.Architecture == "" {
		v.Architecture = "unknown"
	}
	if v.BuildDate.IsZero() {
		v.BuildDate = now
	}
	v.LastSeen = now

	stored := v.Clone()
	r.mu.Lock()
	r.agents[v.AgentID] = stored
	r.mu.Unlock()

	r.persistVersion(ctx, stored.Clone())

	r.logger.Info("registered agent version",
		zap.String("agent_id", v.AgentID),
		zap.String("version", v.Version),
		zap.String("channel", string(v.UpdateChannel)))

	if r.onRegister != nil {
		r.onRegister(v.AgentID)
	}
	return stored.Clone()
}

// Get returns a snapshot of the tracked version for one agent.
func (r *VersionRegistry) Get(agentID string) (*domain.AgentVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// All returns snapshots of every tracked agent version.
func (r *VersionRegistry) All() []domain.AgentVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AgentVersion, 0, len(r.agents))
	for _, v := range r.agents {
		out = append(out, *v.Clone())
	}
	return out
}

// SetVersion overwrites the tracked version in place after a verified
// update or rollback. It is a no-op for unknown agents.
func (r *VersionRegistry) SetVersion(ctx context.Context, agentID, version string) bool {
	r.mu.Lock()
	v, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	v.Version = version
	v.LastSeen = r.now()
	snapshot := v.Clone()
	r.mu.Unlock()

	r.persistVersion(ctx, snapshot)
	return true
}

func (r *VersionRegistry) persistVersion(ctx context.Context, v *domain.AgentVersion) {
	if r.store == nil {
		return
	}
	r.persist.Do(ctx, "agent_version.upsert", func(ctx context.Context) error {
		return r.store.Upsert(ctx, v)
	})
}
