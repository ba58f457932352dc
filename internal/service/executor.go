package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"go.uber.org/zap"
)

// ArtifactFetcher produces verified artifact bytes for a package.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, pkg *domain.UpdatePackage) ([]byte, error)
}

// Timeouts bound every remote wait. Exceeding one is a normal failure
// path, never a crash.
type Timeouts struct {
	BackupWait   time.Duration
	OnlineWait   time.Duration
	VerifyWait   time.Duration
	PollInterval time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		BackupWait:   60 * time.Second,
		OnlineWait:   120 * time.Second,
		VerifyWait:   30 * time.Second,
		PollInterval: 5 * time.Second,
	}
}

// waitFor polls cond until it holds, the timeout elapses, or the context
// is done. Returns whether cond was satisfied.
func waitFor(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}

// verifyAgentVersion asks the agent to confirm its running version, then
// polls the status channel until the reported version matches expected.
// Used identically for forward updates and rollbacks.
func verifyAgentVersion(ctx context.Context, commands domain.CommandChannel, status domain.StatusChannel, timeouts Timeouts, agentID, expected string) error {
	cmd, err := commands.CreateCommand(ctx, agentID, domain.CommandVerifyVersion, map[string]any{
		"expected_version": expected,
	})
	if err != nil {
		return fmt.Errorf("%w: create verify command: %v", ErrVerification, err)
	}
	if !commands.Dispatch(ctx, cmd) {
		return fmt.Errorf("%w: verify command rejected for agent %s", ErrVerification, agentID)
	}

	ok := waitFor(ctx, timeouts.VerifyWait, timeouts.PollInterval, func() bool {
		reported, known := status.ReportedVersion(agentID)
		return known && reported == expected
	})
	if !ok {
		return fmt.Errorf("%w: agent %s did not confirm version %s", ErrVerification, agentID, expected)
	}
	return nil
}

// Executor runs the staged update state machine for one job at a time per
// agent: download, backup, install, restart, verify. Workers for different
// agents run fully in parallel.
type Executor struct {
	jobs      *JobTable
	registry  *VersionRegistry
	catalog   *UpdateCatalog
	artifacts ArtifactFetcher
	commands  domain.CommandChannel
	status    domain.StatusChannel
	rollback  *RollbackCoordinator

	store   domain.UpdateStore
	persist *BestEffortPersist
	events  domain.EventSink
	logger  *zap.Logger

	timeouts Timeouts
	now      func() time.Time
}

func NewExecutor(jobs *JobTable, registry *VersionRegistry, catalog *UpdateCatalog, artifacts ArtifactFetcher, commands domain.CommandChannel, status domain.StatusChannel, store domain.UpdateStore, persist *BestEffortPersist, events domain.EventSink, logger *zap.Logger) *Executor {
	e := &Executor{
		jobs:      jobs,
		registry:  registry,
		catalog:   catalog,
		artifacts: artifacts,
		commands:  commands,
		status:    status,
		store:     store,
		persist:   persist,
		events:    events,
		logger:    logger,
		timeouts:  DefaultTimeouts(),
		now:       time.Now,
	}
	if e.events == nil {
		e.events = domain.NopEventSink{}
	}
	return e
}

// SetRollbackCoordinator wires the coordinator invoked on restart and
// verification failures. Set during wiring; nil disables automatic
// remediation.
func (e *Executor) SetRollbackCoordinator(rc *RollbackCoordinator) {
	e.rollback = rc
}

func (e *Executor) SetTimeouts(t Timeouts) {
	e.timeouts = t
}

// Run executes one job to a terminal state. Any panic is caught and marks
// the job failed; nothing escaping Run may take the scheduler loop down.
func (e *Executor) Run(ctx context.Context, updateID string) {
	job, ok := e.jobs.Claim(updateID, e.now())
	if !ok {
		// Already claimed by another sweep, or cancelled while queued.
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, updateID, fmt.Sprintf("unhandled failure: %v", r))
		}
	}()

	e.logger.Info("starting agent update",
		zap.String("update_id", job.ID),
		zap.String("agent_id", job.AgentID),
		zap.String("to_version", job.ToVersion))

	pkg, ok := e.catalog.Get(job.PackageID)
	if !ok {
		e.fail(ctx, updateID, fmt.Sprintf("%v: %s", ErrPackageUnknown, job.PackageID))
		return
	}

	e.persistSnapshot(ctx, updateID)
	e.notifyProgress(ctx, updateID, "downloading", 0)

	payload, err := e.artifacts.Fetch(ctx, &pkg)
	if err != nil {
		e.fail(ctx, updateID, fmt.Sprintf("%v: %v", ErrDownload, err))
		return
	}

	// The cancellation window closes at install; honor a cancel that
	// landed while the artifact was downloading.
	if cur, _ := e.jobs.Get(updateID); cur.Status == domain.StatusCancelled {
		return
	}

	e.notifyProgress(ctx, updateID, "backing_up", 25)
	backupRef, err := e.createBackup(ctx, job.AgentID)
	if err != nil {
		e.fail(ctx, updateID, err.Error())
		return
	}
	job, ok = e.jobs.Mutate(updateID, func(u *domain.AgentUpdate) {
		u.BackupRef = backupRef
		u.Status = domain.StatusInstalling
	})
	if !ok {
		// Cancelled while waiting for the backup confirmation; the
		// terminal state stands and nothing further runs.
		return
	}
	e.persistSnapshot(ctx, updateID)

	e.notifyProgress(ctx, updateID, "installing", 50)
	if err := e.install(ctx, job.AgentID, &pkg, payload); err != nil {
		e.fail(ctx, updateID, err.Error())
		return
	}

	if !e.transition(ctx, updateID, domain.StatusRestarting) {
		return
	}
	e.notifyProgress(ctx, updateID, "restarting", 75)
	if err := e.restart(ctx, job.AgentID); err != nil {
		e.fail(ctx, updateID, err.Error())
		e.triggerRollback(ctx, updateID, "agent did not return online after update")
		return
	}

	if !e.transition(ctx, updateID, domain.StatusVerifying) {
		return
	}
	e.notifyProgress(ctx, updateID, "verifying", 90)
	if err := verifyAgentVersion(ctx, e.commands, e.status, e.timeouts, job.AgentID, job.ToVersion); err != nil {
		e.fail(ctx, updateID, err.Error())
		e.triggerRollback(ctx, updateID, "update verification failed")
		return
	}

	e.complete(ctx, updateID)
}

func (e *Executor) createBackup(ctx context.Context, agentID string) (string, error) {
	ref := fmt.Sprintf("backups/agent_%s_%s.backup", agentID, e.now().Format("20060102_150405"))

	cmd, err := e.commands.CreateCommand(ctx, agentID, domain.CommandCreateBackup, map[string]any{
		"path":           ref,
		"include_data":   true,
		"include_config": true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create backup command: %v", ErrBackup, err)
	}
	if !e.commands.Dispatch(ctx, cmd) {
		return "", fmt.Errorf("%w: backup command rejected for agent %s", ErrBackup, agentID)
	}

	ok := waitFor(ctx, e.timeouts.BackupWait, e.timeouts.PollInterval, func() bool {
		confirmed, known := e.status.ConfirmedBackup(agentID)
		return known && confirmed == ref
	})
	if !ok {
		return "", fmt.Errorf("%w: agent %s never confirmed backup %s", ErrBackup, agentID, ref)
	}
	return ref, nil
}

func (e *Executor) install(ctx context.Context, agentID string, pkg *domain.UpdatePackage, payload []byte) error {
	cmd, err := e.commands.CreateCommand(ctx, agentID, domain.CommandInstallUpdate, map[string]any{
		"package_id": pkg.ID,
		"version":    pkg.Version,
		"payload":    hex.EncodeToString(payload),
		"checksum":   pkg.Checksum,
		"options": map[string]any{
			"backup_current":        true,
			"verify_before_restart": true,
			"rollback_on_failure":   true,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create install command: %v", ErrInstall, err)
	}
	if !e.commands.Dispatch(ctx, cmd) {
		return fmt.Errorf("%w: install command rejected for agent %s", ErrInstall, agentID)
	}
	return nil
}

func (e *Executor) restart(ctx context.Context, agentID string) error {
	cmd, err := e.commands.CreateCommand(ctx, agentID, domain.CommandRestartForUpdate, map[string]any{
		"delay_seconds": 5,
		"graceful":      true,
	})
	if err != nil {
		return fmt.Errorf("%w: create restart command: %v", ErrRestart, err)
	}
	if !e.commands.Dispatch(ctx, cmd) {
		return fmt.Errorf("%w: restart command rejected for agent %s", ErrRestart, agentID)
	}

	if !waitFor(ctx, e.timeouts.OnlineWait, e.timeouts.PollInterval, func() bool {
		return e.status.IsOnline(agentID)
	}) {
		return fmt.Errorf("%w: agent %s did not return online", ErrRestart, agentID)
	}
	return nil
}

func (e *Executor) complete(ctx context.Context, updateID string) {
	now := e.now()
	job, ok := e.jobs.Mutate(updateID, func(u *domain.AgentUpdate) {
		u.Status = domain.StatusCompleted
		u.CompletedAt = &now
		u.Progress = 100
	})
	if !ok {
		return
	}

	e.registry.SetVersion(ctx, job.AgentID, job.ToVersion)
	e.persistSnapshot(ctx, updateID)

	e.logger.Info("agent update completed",
		zap.String("update_id", job.ID),
		zap.String("agent_id", job.AgentID),
		zap.String("version", job.ToVersion))

	e.events.Emit(domain.EventUpdateCompleted, map[string]any{
		"agent_id":  job.AgentID,
		"update_id": job.ID,
		"version":   job.ToVersion,
	})

	// Keep an eye on the agent for the grace period; the health watch
	// rolls back an update the agent does not survive.
	if e.rollback != nil {
		e.rollback.Watch(job)
	}
}

func (e *Executor) fail(ctx context.Context, updateID, message string) {
	now := e.now()
	job, ok := e.jobs.Mutate(updateID, func(u *domain.AgentUpdate) {
		u.Status = domain.StatusFailed
		u.ErrorMessage = message
		u.CompletedAt = &now
	})
	if !ok {
		return
	}
	e.persistSnapshot(ctx, updateID)

	e.logger.Error("agent update failed",
		zap.String("update_id", job.ID),
		zap.String("agent_id", job.AgentID),
		zap.String("error", message))

	e.events.Emit(domain.EventUpdateFailed, map[string]any{
		"agent_id":  job.AgentID,
		"update_id": job.ID,
		"error":     message,
	})
}

func (e *Executor) triggerRollback(ctx context.Context, updateID, reason string) {
	if e.rollback == nil {
		return
	}
	job, ok := e.jobs.Get(updateID)
	if !ok {
		return
	}
	e.rollback.Automatic(ctx, job, reason)
}

// transition advances the job's status. Returns false when the table
// refused the transition because the job already reached a terminal state,
// in which case the caller must abandon the run.
func (e *Executor) transition(ctx context.Context, updateID string, status domain.UpdateStatus) bool {
	if _, ok := e.jobs.Mutate(updateID, func(u *domain.AgentUpdate) {
		u.Status = status
	}); !ok {
		return false
	}
	e.persistSnapshot(ctx, updateID)
	return true
}

func (e *Executor) notifyProgress(ctx context.Context, updateID, stage string, percent int) {
	job, ok := e.jobs.Mutate(updateID, func(u *domain.AgentUpdate) {
		u.Progress = percent
	})
	if !ok {
		return
	}
	e.persistSnapshot(ctx, updateID)
	e.events.Emit(domain.EventUpdateProgress, map[string]any{
		"agent_id":  job.AgentID,
		"update_id": job.ID,
		"stage":     stage,
		"percent":   percent,
	})
}

func (e *Executor) persistSnapshot(ctx context.Context, updateID string) {
	if e.store == nil {
		return
	}
	job, ok := e.jobs.Get(updateID)
	if !ok {
		return
	}
	e.persist.Do(ctx, "agent_update.upsert", func(ctx context.Context) error {
		return e.store.Upsert(ctx, &job)
	})
}
