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
	defaultCatalogInterval = 300 * time.Second
	defaultCatalogBackoff  = 900 * time.Second

	defaultRollbackGraceMinutes = 30
)

// MaintenanceWindow is a recurring daily HH:MM-HH:MM range, possibly
// wrapping past midnight, during which non-critical updates may execute.
// The zero value disables the gate.
type MaintenanceWindow struct {
	Start string
	End   string
}

func (w MaintenanceWindow) enabled() bool {
	return w.Start != "" && w.End != ""
}

// Contains reports whether t falls inside the window. Unparseable bounds
// disable the gate rather than holding every update forever.
func (w MaintenanceWindow) Contains(t time.Time) bool {
	if !w.enabled() {
		return true
	}
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return true
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return true
	}

	cur := t.Hour()*60 + t.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()

	if from <= to {
		return cur >= from && cur <= to
	}
	// Window wraps past midnight.
	return cur >= from || cur <= to
}

// Scheduler drives discovery: it refreshes the catalog, evaluates every
// package against every tracked agent, creates jobs with the policy delay,
// and promotes due jobs to execution on their own workers.
type Scheduler struct {
	catalog  *UpdateCatalog
	registry *VersionRegistry
	jobs     *JobTable
	eval     *Evaluator
	executor *Executor

	store   domain.UpdateStore
	persist *BestEffortPersist
	events  domain.EventSink
	logger  *zap.Logger

	window     MaintenanceWindow
	interval   time.Duration
	errBackoff time.Duration
	now        func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(catalog *UpdateCatalog, registry *VersionRegistry, jobs *JobTable, eval *Evaluator, executor *Executor, store domain.UpdateStore, persist *BestEffortPersist, events domain.EventSink, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		catalog:    catalog,
		registry:   registry,
		jobs:       jobs,
		eval:       eval,
		executor:   executor,
		store:      store,
		persist:    persist,
		events:     events,
		logger:     logger,
		interval:   defaultCatalogInterval,
		errBackoff: defaultCatalogBackoff,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	if s.events == nil {
		s.events = domain.NopEventSink{}
	}
	// Every version report triggers a single-agent eligibility pass.
	registry.SetOnRegister(s.EvaluateAgent)
	return s
}

func (s *Scheduler) SetInterval(interval, errBackoff time.Duration) {
	s.interval = interval
	s.errBackoff = errBackoff
}

func (s *Scheduler) SetMaintenanceWindow(w MaintenanceWindow) {
	s.window = w
}

// Start runs the catalog/scheduler loop in a background goroutine:
// poll the feed, evaluate, promote due jobs, sleep. A pass that errored
// sleeps the longer backoff instead.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("update scheduler started",
			zap.Duration("interval", s.interval),
			zap.Duration("error_backoff", s.errBackoff))

		for {
			delay := s.interval
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduler pass failed", zap.Error(err))
				delay = s.errBackoff
			}
			cancel()

			select {
			case <-time.After(delay):
			case <-s.stopCh:
				s.logger.Info("update scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler loop and waits for in-flight job
// workers to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce performs one full scheduler pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	err := s.catalog.Refresh(ctx)
	s.EvaluateAll(ctx)
	s.PromoteDue(ctx)
	return err
}

// EvaluateAll checks every discovered package against every tracked agent.
func (s *Scheduler) EvaluateAll(ctx context.Context) {
	packages := s.catalog.Packages()
	for _, agent := range s.registry.All() {
		s.evaluate(ctx, &agent, packages)
	}
}

// EvaluateAgent runs the eligibility pass for one agent, typically right
// after it reports version metadata.
func (s *Scheduler) EvaluateAgent(agentID string) {
	agent, ok := s.registry.Get(agentID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.evaluate(ctx, agent, s.catalog.Packages())
}

func (s *Scheduler) evaluate(ctx context.Context, agent *domain.AgentVersion, packages []domain.UpdatePackage) {
	for i := range packages {
		pkg := &packages[i]
		if !s.eval.ShouldUpdate(agent, pkg, s.jobs.HasActive(agent.AgentID)) {
			continue
		}
		if _, err := s.Schedule(ctx, agent.AgentID, pkg.ID, "system"); err != nil {
			// Losing the single-flight race to a concurrent pass is
			// expected; anything else is worth a log line.
			if err != ErrUpdateInFlight {
				s.logger.Error("failed to schedule update",
					zap.String("agent_id", agent.AgentID),
					zap.String("package_id", pkg.ID),
					zap.Error(err))
			}
		}
	}
}

// Schedule creates a new update job for an agent. The scheduled time is
// now plus the policy delay for the package's update type; a critical
// package is always scheduled for now.
func (s *Scheduler) Schedule(ctx context.Context, agentID, packageID, initiatedBy string) (*domain.AgentUpdate, error) {
	agent, ok := s.registry.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentUnknown, agentID)
	}
	pkg, ok := s.catalog.Get(packageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageUnknown, packageID)
	}

	now := s.now()
	job := &domain.AgentUpdate{
		ID:                   uuid.NewString(),
		AgentID:              agentID,
		PackageID:            pkg.ID,
		FromVersion:          agent.Version,
		ToVersion:            pkg.Version,
		UpdateType:           pkg.UpdateType,
		ScheduledTime:        now.Add(time.Duration(s.eval.PolicyDelayHours(&pkg)) * time.Hour),
		Status:               domain.StatusScheduled,
		Strategy:             domain.StrategyRolling,
		AutoRollbackEnabled:  true,
		RollbackGraceMinutes: defaultRollbackGraceMinutes,
		InitiatedBy:          initiatedBy,
	}

	if err := s.jobs.TrySchedule(job); err != nil {
		return nil, err
	}

	s.persistUpdate(ctx, job)

	s.logger.Info("scheduled agent update",
		zap.String("agent_id", agentID),
		zap.String("update_id", job.ID),
		zap.String("from_version", job.FromVersion),
		zap.String("to_version", job.ToVersion),
		zap.Time("scheduled_time", job.ScheduledTime),
		zap.Bool("critical", pkg.Critical))

	s.events.Emit(domain.EventUpdateScheduled, map[string]any{
		"agent_id":       agentID,
		"update_id":      job.ID,
		"from_version":   job.FromVersion,
		"to_version":     job.ToVersion,
		"scheduled_time": job.ScheduledTime,
		"update_type":    job.UpdateType,
		"critical":       pkg.Critical,
	})

	return job, nil
}

// PromoteDue hands every due scheduled job to its own executor worker.
// Non-critical jobs are held outside the maintenance window; critical jobs
// ignore the window.
func (s *Scheduler) PromoteDue(ctx context.Context) {
	now := s.now()
	for _, job := range s.jobs.DueScheduled(now) {
		pkg, ok := s.catalog.Get(job.PackageID)
		if ok && !pkg.Critical && !s.window.Contains(now) {
			continue
		}

		id := job.ID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.executor.Run(context.Background(), id)
		}()
	}
}

// Cancel performs the terminal cancelled transition for a job still in its
// cancellation window.
func (s *Scheduler) Cancel(ctx context.Context, updateID string) (domain.AgentUpdate, error) {
	job, err := s.jobs.Cancel(updateID, s.now())
	if err != nil {
		return job, err
	}
	s.persistUpdate(ctx, &job)
	s.logger.Info("update cancelled",
		zap.String("update_id", job.ID),
		zap.String("agent_id", job.AgentID))
	return job, nil
}

// CancelAll cancels every job still in its cancellation window and returns
// how many were cancelled. Used by the emergency stop surface.
func (s *Scheduler) CancelAll(ctx context.Context) int {
	n := 0
	for _, job := range s.jobs.Active() {
		if _, err := s.Cancel(ctx, job.ID); err == nil {
			n++
		}
	}
	return n
}

func (s *Scheduler) persistUpdate(ctx context.Context, u *domain.AgentUpdate) {
	if s.store == nil {
		return
	}
	cp := *u
	s.persist.Do(ctx, "agent_update.upsert", func(ctx context.Context) error {
		return s.store.Upsert(ctx, &cp)
	})
}
