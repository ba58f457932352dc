package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// brokenUpdateStore fails every write, standing in for a database outage.
type brokenUpdateStore struct {
	writes int
}

func (s *brokenUpdateStore) Upsert(ctx context.Context, u *domain.AgentUpdate) error {
	s.writes++
	return errors.New("connection refused")
}

func (s *brokenUpdateStore) GetByID(ctx context.Context, id string) (*domain.AgentUpdate, error) {
	return nil, errors.New("connection refused")
}

func (s *brokenUpdateStore) ListByAgent(ctx context.Context, agentID string) ([]domain.AgentUpdate, error) {
	return nil, errors.New("connection refused")
}

func TestBestEffortPersistSwallowsErrors(t *testing.T) {
	persist := NewBestEffortPersist(zap.NewNop())

	calls := 0
	persist.Do(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, 1, calls)

	// Nil fn means no store configured.
	persist.Do(context.Background(), "test.op", nil)
}

func TestSchedulingSurvivesStoreOutage(t *testing.T) {
	logger := zap.NewNop()
	persist := NewBestEffortPersist(logger)
	store := &brokenUpdateStore{}

	registry := NewVersionRegistry(nil, persist, logger)
	feed := newStaticFeed()
	feed.add(stablePackage("pkg-1", "2.0.0"))
	catalog := NewUpdateCatalog(feed, []domain.Channel{domain.ChannelStable}, nil, persist, logger)
	jobs := NewJobTable()
	commands := newFakeCommands()
	status := newFakeStatus()
	executor := NewExecutor(jobs, registry, catalog, &fakeFetcher{payload: []byte("x")}, commands, status, store, persist, nil, logger)
	executor.SetTimeouts(fastTimeouts())
	scheduler := NewScheduler(catalog, registry, jobs, NewEvaluator(nil), executor, store, persist, nil, logger)

	ctx := context.Background()
	registry.Register(ctx, stableAgent("agent-1", "1.9.0"))
	require.NoError(t, catalog.Refresh(ctx))

	// The store is down; the in-memory transition still happens.
	job, err := scheduler.Schedule(ctx, "agent-1", "pkg-1", "operator")
	require.NoError(t, err)
	assert.Positive(t, store.writes)

	got, ok := jobs.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusScheduled, got.Status)
}
