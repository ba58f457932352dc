package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *VersionRegistry {
	logger := zap.NewNop()
	return NewVersionRegistry(nil, NewBestEffortPersist(logger), logger)
}

func TestRegisterDefaults(t *testing.T) {
	registry := newTestRegistry()

	got := registry.Register(context.Background(), &domain.AgentVersion{
		AgentID: "agent-1",
		Version: "1.9.0",
	})

	assert.Equal(t, domain.ChannelStable, got.UpdateChannel)
	assert.Equal(t, "unknown", got.Platform)
	assert.Equal(t, "unknown", got.Architecture)
	assert.False(t, got.LastSeen.IsZero())
	assert.False(t, got.BuildDate.IsZero())
}

func TestRegisterOverwritesAndTriggersEvaluation(t *testing.T) {
	registry := newTestRegistry()

	var evaluated []string
	registry.SetOnRegister(func(agentID string) {
		evaluated = append(evaluated, agentID)
	})

	registry.Register(context.Background(), stableAgent("agent-1", "1.8.0"))
	registry.Register(context.Background(), stableAgent("agent-1", "1.9.0"))

	got, ok := registry.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, "1.9.0", got.Version)
	assert.Equal(t, []string{"agent-1", "agent-1"}, evaluated)
	assert.Len(t, registry.All(), 1)
}

func TestGetReturnsSnapshot(t *testing.T) {
	registry := newTestRegistry()
	agent := stableAgent("agent-1", "1.9.0")
	agent.Dependencies = map[string]string{"libfoo": "2.3.0"}
	registry.Register(context.Background(), agent)

	snap, ok := registry.Get("agent-1")
	require.True(t, ok)
	snap.Version = "tampered"
	snap.Dependencies["libfoo"] = "tampered"

	fresh, _ := registry.Get("agent-1")
	assert.Equal(t, "1.9.0", fresh.Version)
	assert.Equal(t, "2.3.0", fresh.Dependencies["libfoo"])
}

func TestSetVersion(t *testing.T) {
	registry := newTestRegistry()
	registry.Register(context.Background(), stableAgent("agent-1", "1.9.0"))

	require.True(t, registry.SetVersion(context.Background(), "agent-1", "2.0.0"))
	got, _ := registry.Get("agent-1")
	assert.Equal(t, "2.0.0", got.Version)

	// Everything but version and last_seen is untouched.
	assert.Equal(t, "linux", got.Platform)
	assert.Equal(t, domain.ChannelStable, got.UpdateChannel)

	assert.False(t, registry.SetVersion(context.Background(), "agent-unknown", "2.0.0"))
	_, ok := registry.Get("agent-unknown")
	assert.False(t, ok)
}
