package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHealthWatchInterval = 60 * time.Second
	defaultHealthWatchBackoff  = 300 * time.Second
)

type healthWatch struct {
	updateID string
	agentID  string
	deadline time.Time
}

// RollbackCoordinator restores agents to their prior version. It is
// triggered synchronously by failed restart/verification steps, by the
// post-update health watch when an agent is not online at the end of its
// grace period, or manually through the API.
type RollbackCoordinator struct {
	jobs     *JobTable
	registry *VersionRegistry
	commands domain.CommandChannel
	status   domain.StatusChannel

	store       domain.RollbackStore
	updateStore domain.UpdateStore
	persist     *BestEffortPersist
	events      domain.EventSink
	logger      *zap.Logger

	timeouts   Timeouts
	interval   time.Duration
	errBackoff time.Duration
	now        func() time.Time

	mu      sync.Mutex
	watches map[string]healthWatch

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRollbackCoordinator(jobs *JobTable, registry *VersionRegistry, commands domain.CommandChannel, status domain.StatusChannel, store domain.RollbackStore, updateStore domain.UpdateStore, persist *BestEffortPersist, events domain.EventSink, logger *zap.Logger) *RollbackCoordinator {
	c := &RollbackCoordinator{
		jobs:        jobs,
		registry:    registry,
		commands:    commands,
		status:      status,
		store:       store,
		updateStore: updateStore,
		persist:     persist,
		events:      events,
		logger:      logger,
		timeouts:    DefaultTimeouts(),
		interval:    defaultHealthWatchInterval,
		errBackoff:  defaultHealthWatchBackoff,
		now:         time.Now,
		watches:     make(map[string]healthWatch),
		stopCh:      make(chan struct{}),
	}
	if c.events == nil {
		c.events = domain.NopEventSink{}
	}
	return c
}

func (c *RollbackCoordinator) SetTimeouts(t Timeouts) {
	c.timeouts = t
}

func (c *RollbackCoordinator) SetInterval(interval, errBackoff time.Duration) {
	c.interval = interval
	c.errBackoff = errBackoff
}

// Watch arms the post-update health watch for a completed job: if the
// agent is not online when the grace period expires, the update is rolled
// back automatically.
func (c *RollbackCoordinator) Watch(job domain.AgentUpdate) {
	if !job.AutoRollbackEnabled || job.CompletedAt == nil {
		return
	}
	deadline := job.CompletedAt.Add(time.Duration(job.RollbackGraceMinutes) * time.Minute)
	c.mu.Lock()
	c.watches[job.ID] = healthWatch{updateID: job.ID, agentID: job.AgentID, deadline: deadline}
	c.mu.Unlock()
}

// Start runs the health-watch loop in a background goroutine.
func (c *RollbackCoordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.logger.Info("rollback health watch started", zap.Duration("interval", c.interval))

		for {
			delay := c.interval
			ctx, cancel := context.WithTimeout(context.Background(), c.interval)
			if err := c.Sweep(ctx); err != nil {
				c.logger.Error("health sweep failed", zap.Error(err))
				delay = c.errBackoff
			}
			cancel()

			select {
			case <-time.After(delay):
			case <-c.stopCh:
				c.logger.Info("rollback health watch stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the health-watch loop.
func (c *RollbackCoordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Sweep checks every armed watch whose grace period has expired. A healthy
// (online) agent clears its watch; an offline one gets an automatic
// rollback and its update is marked rolled_back.
func (c *RollbackCoordinator) Sweep(ctx context.Context) error {
	now := c.now()

	c.mu.Lock()
	var expired []healthWatch
	for id, w := range c.watches {
		if !w.deadline.After(now) {
			expired = append(expired, w)
			delete(c.watches, id)
		}
	}
	c.mu.Unlock()

	var lastErr error
	for _, w := range expired {
		if c.status.IsOnline(w.agentID) {
			continue
		}

		c.logger.Warn("agent unhealthy after update grace period, rolling back",
			zap.String("agent_id", w.agentID),
			zap.String("update_id", w.updateID))

		job, ok := c.jobs.Get(w.updateID)
		if !ok {
			continue
		}
		if err := c.Automatic(ctx, job, "agent unhealthy after update grace period"); err != nil {
			lastErr = err
			// The watch is already disarmed; leave the failed remediation
			// on the job so the audit surface shows it.
			annotated, ok := c.jobs.Mutate(w.updateID, func(u *domain.AgentUpdate) {
				u.Notes = "automatic rollback failed: " + err.Error()
			})
			if ok {
				c.persistUpdate(ctx, &annotated)
			}
			continue
		}
		rolled, _ := c.jobs.Mutate(w.updateID, func(u *domain.AgentUpdate) {
			u.Status = domain.StatusRolledBack
		})
		c.persistUpdate(ctx, &rolled)
	}
	return lastErr
}

// Manual restores an agent from its most recent completed update that has
// a backup. targetVersion overrides the default (that update's
// from_version) when non-empty.
func (c *RollbackCoordinator) Manual(ctx context.Context, agentID, targetVersion, initiatedBy string) (*domain.RollbackOperation, error) {
	candidate, ok := c.jobs.LatestRollbackCandidate(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: no completed update with a backup for agent %s", ErrRollback, agentID)
	}

	to := candidate.FromVersion
	if targetVersion != "" {
		to = targetVersion
	}

	op := &domain.RollbackOperation{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		UpdateID:     candidate.ID,
		FromVersion:  candidate.ToVersion,
		ToVersion:    to,
		RollbackType: domain.RollbackManual,
		BackupRef:    candidate.BackupRef,
		InitiatedBy:  initiatedBy,
		Reason:       "manual rollback requested",
	}
	return op, c.execute(ctx, op)
}

// Automatic undoes a failed or unhealthy update, restoring from the backup
// the job recorded before install. Disabled auto-rollback leaves the job
// as-is pending manual intervention.
func (c *RollbackCoordinator) Automatic(ctx context.Context, job domain.AgentUpdate, reason string) error {
	if !job.AutoRollbackEnabled {
		c.logger.Warn("auto-rollback disabled, leaving agent on partially-applied version",
			zap.String("update_id", job.ID),
			zap.String("agent_id", job.AgentID))
		return nil
	}

	op := &domain.RollbackOperation{
		ID:           uuid.NewString(),
		AgentID:      job.AgentID,
		UpdateID:     job.ID,
		FromVersion:  job.ToVersion,
		ToVersion:    job.FromVersion,
		RollbackType: domain.RollbackAutomatic,
		BackupRef:    job.BackupRef,
		InitiatedBy:  "system",
		Reason:       reason,
	}
	return c.execute(ctx, op)
}

// execute dispatches the rollback command and re-runs the standard version
// verification against the rollback target. A failed rollback never
// rewinds the registry to an unverified value.
func (c *RollbackCoordinator) execute(ctx context.Context, op *domain.RollbackOperation) error {
	started := c.now()
	op.Status = domain.RollbackStatusExecuting
	op.StartedAt = &started

	c.jobs.AddRollback(op)
	c.persistRollback(ctx, op)

	c.logger.Info("starting rollback",
		zap.String("rollback_id", op.ID),
		zap.String("agent_id", op.AgentID),
		zap.String("from_version", op.FromVersion),
		zap.String("to_version", op.ToVersion),
		zap.String("type", string(op.RollbackType)))

	c.events.Emit(domain.EventRollbackStarted, map[string]any{
		"agent_id":      op.AgentID,
		"rollback_id":   op.ID,
		"from_version":  op.FromVersion,
		"to_version":    op.ToVersion,
		"rollback_type": op.RollbackType,
	})

	if err := c.dispatchAndVerify(ctx, op); err != nil {
		c.finish(ctx, op, domain.RollbackStatusFailed, err.Error())
		return err
	}

	c.registry.SetVersion(ctx, op.AgentID, op.ToVersion)
	c.finish(ctx, op, domain.RollbackStatusCompleted, "")
	return nil
}

func (c *RollbackCoordinator) dispatchAndVerify(ctx context.Context, op *domain.RollbackOperation) error {
	cmd, err := c.commands.CreateCommand(ctx, op.AgentID, domain.CommandExecuteRollback, map[string]any{
		"backup_ref":     op.BackupRef,
		"target_version": op.ToVersion,
	})
	if err != nil {
		return fmt.Errorf("%w: create rollback command: %v", ErrRollback, err)
	}
	if !c.commands.Dispatch(ctx, cmd) {
		return fmt.Errorf("%w: rollback command rejected for agent %s", ErrRollback, op.AgentID)
	}

	if err := verifyAgentVersion(ctx, c.commands, c.status, c.timeouts, op.AgentID, op.ToVersion); err != nil {
		return fmt.Errorf("%w: %v", ErrRollback, err)
	}
	return nil
}

func (c *RollbackCoordinator) finish(ctx context.Context, op *domain.RollbackOperation, status domain.RollbackStatus, errMessage string) {
	done := c.now()
	updated, ok := c.jobs.MutateRollback(op.ID, func(r *domain.RollbackOperation) {
		r.Status = status
		r.CompletedAt = &done
		r.ErrorMessage = errMessage
	})
	if ok {
		*op = updated
	}
	c.persistRollback(ctx, op)

	if status == domain.RollbackStatusCompleted {
		c.logger.Info("rollback completed",
			zap.String("rollback_id", op.ID),
			zap.String("agent_id", op.AgentID),
			zap.String("version", op.ToVersion))
	} else {
		c.logger.Error("rollback failed",
			zap.String("rollback_id", op.ID),
			zap.String("agent_id", op.AgentID),
			zap.String("error", errMessage))
	}

	c.events.Emit(domain.EventRollbackCompleted, map[string]any{
		"agent_id":    op.AgentID,
		"rollback_id": op.ID,
		"success":     status == domain.RollbackStatusCompleted,
	})
}

func (c *RollbackCoordinator) persistRollback(ctx context.Context, op *domain.RollbackOperation) {
	if c.store == nil {
		return
	}
	cp := *op
	c.persist.Do(ctx, "rollback_operation.upsert", func(ctx context.Context) error {
		return c.store.Upsert(ctx, &cp)
	})
}

func (c *RollbackCoordinator) persistUpdate(ctx context.Context, u *domain.AgentUpdate) {
	if c.updateStore == nil {
		return
	}
	cp := *u
	c.persist.Do(ctx, "agent_update.upsert", func(ctx context.Context) error {
		return c.updateStore.Upsert(ctx, &cp)
	})
}
