package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completedUpdate seeds the registry and job table with the aftermath of a
// successful update: the agent runs toVersion and a backup exists.
func completedUpdate(t *testing.T, env *testEnv, agentID, fromVersion, toVersion string) domain.AgentUpdate {
	t.Helper()

	env.registry.Register(context.Background(), stableAgent(agentID, toVersion))

	now := time.Now()
	job := &domain.AgentUpdate{
		ID:                   uuid.NewString(),
		AgentID:              agentID,
		PackageID:            "pkg-1",
		FromVersion:          fromVersion,
		ToVersion:            toVersion,
		UpdateType:           domain.UpdateSecurity,
		ScheduledTime:        now,
		Status:               domain.StatusScheduled,
		Strategy:             domain.StrategyRolling,
		AutoRollbackEnabled:  true,
		RollbackGraceMinutes: 30,
	}
	require.NoError(t, env.jobs.TrySchedule(job))
	got, ok := env.jobs.Mutate(job.ID, func(u *domain.AgentUpdate) {
		u.Status = domain.StatusCompleted
		u.CompletedAt = &now
		u.Progress = 100
		u.BackupRef = "backups/agent_" + agentID + ".backup"
	})
	require.True(t, ok)
	return got
}

func TestManualRollback(t *testing.T) {
	env := newTestEnv()
	env.healthyAgent()
	ctx := context.Background()

	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")

	op, err := env.rollback.Manual(ctx, "agent-1", "", "operator")
	require.NoError(t, err)

	assert.Equal(t, domain.RollbackManual, op.RollbackType)
	assert.Equal(t, domain.RollbackStatusCompleted, op.Status)
	assert.Equal(t, "2.0.0", op.FromVersion)
	assert.Equal(t, "1.9.0", op.ToVersion, "defaults to the update's from_version")
	assert.Equal(t, job.ID, op.UpdateID)
	assert.Equal(t, job.BackupRef, op.BackupRef)
	assert.Equal(t, "operator", op.InitiatedBy)
	assert.NotNil(t, op.CompletedAt)

	agent, _ := env.registry.Get("agent-1")
	assert.Equal(t, "1.9.0", agent.Version)

	assert.Equal(t, 1, env.commands.sent(domain.CommandExecuteRollback))
	assert.Equal(t, 1, env.events.count(domain.EventRollbackStarted))
	assert.Equal(t, 1, env.events.count(domain.EventRollbackCompleted))
}

func TestManualRollbackTargetOverride(t *testing.T) {
	env := newTestEnv()
	env.healthyAgent()
	ctx := context.Background()

	completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")

	op, err := env.rollback.Manual(ctx, "agent-1", "1.8.5", "operator")
	require.NoError(t, err)
	assert.Equal(t, "1.8.5", op.ToVersion)

	agent, _ := env.registry.Get("agent-1")
	assert.Equal(t, "1.8.5", agent.Version)
}

func TestManualRollbackNeedsBackup(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.registry.Register(ctx, stableAgent("agent-1", "2.0.0"))

	_, err := env.rollback.Manual(ctx, "agent-1", "", "operator")
	assert.ErrorIs(t, err, ErrRollback)
	assert.Empty(t, env.jobs.RollbacksFor("agent-1"))
}

func TestFailedRollbackLeavesVersionUntouched(t *testing.T) {
	env := newTestEnv()
	// The agent never reports a version, so rollback verification times
	// out and the operation fails.
	ctx := context.Background()

	completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")

	op, err := env.rollback.Manual(ctx, "agent-1", "", "operator")
	require.Error(t, err)
	require.NotNil(t, op)
	assert.Equal(t, domain.RollbackStatusFailed, op.Status)
	assert.NotEmpty(t, op.ErrorMessage)

	// The registry is never rewound to an unverified value.
	agent, _ := env.registry.Get("agent-1")
	assert.Equal(t, "2.0.0", agent.Version)

	ops := env.jobs.RollbacksFor("agent-1")
	require.Len(t, ops, 1)
	assert.Equal(t, domain.RollbackStatusFailed, ops[0].Status)
	assert.Equal(t, 1, env.events.count(domain.EventRollbackCompleted))
}

func TestAutomaticRollbackDisabled(t *testing.T) {
	env := newTestEnv()
	env.healthyAgent()
	ctx := context.Background()

	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")
	got, _ := env.jobs.Mutate(job.ID, func(u *domain.AgentUpdate) {
		u.AutoRollbackEnabled = false
	})

	require.NoError(t, env.rollback.Automatic(ctx, got, "verification failed"))

	// Nothing was dispatched and nothing was recorded.
	assert.Zero(t, env.commands.sent(domain.CommandExecuteRollback))
	assert.Empty(t, env.jobs.RollbacksFor("agent-1"))
}

func TestHealthWatchRollsBackOfflineAgent(t *testing.T) {
	env := newTestEnv()
	env.healthyAgent()
	ctx := context.Background()

	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")
	env.rollback.Watch(job)

	// Fast-forward past the grace period with the agent offline.
	env.rollback.now = func() time.Time {
		return job.CompletedAt.Add(time.Duration(job.RollbackGraceMinutes)*time.Minute + time.Second)
	}
	env.status.setOnline("agent-1", false)

	require.NoError(t, env.rollback.Sweep(ctx))

	got, _ := env.jobs.Get(job.ID)
	assert.Equal(t, domain.StatusRolledBack, got.Status)

	ops := env.jobs.RollbacksFor("agent-1")
	require.Len(t, ops, 1)
	assert.Equal(t, domain.RollbackAutomatic, ops[0].RollbackType)
	assert.Equal(t, "1.9.0", ops[0].ToVersion)
	assert.Equal(t, "system", ops[0].InitiatedBy)

	agent, _ := env.registry.Get("agent-1")
	assert.Equal(t, "1.9.0", agent.Version)

	// The watch fired once; the next sweep has nothing to do.
	require.NoError(t, env.rollback.Sweep(ctx))
	assert.Len(t, env.jobs.RollbacksFor("agent-1"), 1)
}

func TestHealthWatchClearsHealthyAgent(t *testing.T) {
	env := newTestEnv()
	env.healthyAgent()
	ctx := context.Background()

	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")
	env.rollback.Watch(job)

	env.rollback.now = func() time.Time {
		return job.CompletedAt.Add(time.Duration(job.RollbackGraceMinutes)*time.Minute + time.Second)
	}
	env.status.setOnline("agent-1", true)

	require.NoError(t, env.rollback.Sweep(ctx))

	got, _ := env.jobs.Get(job.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, env.jobs.RollbacksFor("agent-1"))

	agent, _ := env.registry.Get("agent-1")
	assert.Equal(t, "2.0.0", agent.Version)
}

func TestHealthWatchWaitsForGracePeriod(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")
	env.rollback.Watch(job)

	// Still inside the grace period: the offline agent is left alone.
	env.rollback.now = func() time.Time {
		return job.CompletedAt.Add(time.Minute)
	}
	require.NoError(t, env.rollback.Sweep(ctx))

	got, _ := env.jobs.Get(job.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, env.jobs.RollbacksFor("agent-1"))
}

func TestHealthWatchRecordsFailedRemediation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// No onDispatch script: the offline agent never confirms the rollback,
	// so the remediation itself fails.
	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")
	env.rollback.Watch(job)
	env.rollback.now = func() time.Time {
		return job.CompletedAt.Add(time.Duration(job.RollbackGraceMinutes)*time.Minute + time.Second)
	}
	env.status.setOnline("agent-1", false)

	require.Error(t, env.rollback.Sweep(ctx))

	// The job keeps its completed status but carries the failed
	// remediation for the audit surface.
	got, _ := env.jobs.Get(job.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Contains(t, got.Notes, "automatic rollback failed")

	ops := env.jobs.RollbacksFor("agent-1")
	require.Len(t, ops, 1)
	assert.Equal(t, domain.RollbackStatusFailed, ops[0].Status)

	// The registry was never rewound to the unverified target.
	agent, _ := env.registry.Get("agent-1")
	assert.Equal(t, "2.0.0", agent.Version)
}

func TestWatchSkipsWhenAutoRollbackDisabled(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	job := completedUpdate(t, env, "agent-1", "1.9.0", "2.0.0")
	got, _ := env.jobs.Mutate(job.ID, func(u *domain.AgentUpdate) {
		u.AutoRollbackEnabled = false
	})
	env.rollback.Watch(got)

	env.rollback.now = func() time.Time {
		return job.CompletedAt.Add(24 * time.Hour)
	}
	require.NoError(t, env.rollback.Sweep(ctx))
	assert.Empty(t, env.jobs.RollbacksFor("agent-1"))
}
