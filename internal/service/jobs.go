package service

import (
	"sync"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
)

// JobTable owns all AgentUpdate jobs and RollbackOperation records behind a
// single mutex. Every mutation goes through it, which is what makes the
// per-agent single-flight invariant enforceable: at most one AgentUpdate
// per agent is non-terminal at any time.
type JobTable struct {
	mu        sync.RWMutex
	updates   map[string]*domain.AgentUpdate
	order     []string // insertion order, for most-recent scans
	rollbacks map[string][]*domain.RollbackOperation
}

func NewJobTable() *JobTable {
	return &JobTable{
		updates:   make(map[string]*domain.AgentUpdate),
		rollbacks: make(map[string][]*domain.RollbackOperation),
	}
}

// TrySchedule inserts a new job atomically against concurrent scheduling
// attempts for the same agent. Returns ErrUpdateInFlight if the agent
// already has a non-terminal job.
func (t *JobTable) TrySchedule(u *domain.AgentUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.updates {
		if existing.AgentID == u.AgentID && !existing.Status.Terminal() {
			return ErrUpdateInFlight
		}
	}

	cp := *u
	t.updates[u.ID] = &cp
	t.order = append(t.order, u.ID)
	return nil
}

// HasActive reports whether the agent has a non-terminal job.
func (t *JobTable) HasActive(agentID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, u := range t.updates {
		if u.AgentID == agentID && !u.Status.Terminal() {
			return true
		}
	}
	return false
}

// Get returns a copy of one job.
func (t *JobTable) Get(id string) (domain.AgentUpdate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.updates[id]
	if !ok {
		return domain.AgentUpdate{}, false
	}
	return *u, true
}

// Mutate applies fn to a job under the table lock and returns the
// post-mutation copy. Transitions are monotonic: once a job reaches a
// terminal status, any mutation that would change its status again is
// discarded and Mutate returns false, so a concurrent cancel cannot be
// stomped by a worker mid-run. The one exception is completed →
// rolled_back, which the health watch applies when it remediates an
// update the agent did not survive.
func (t *JobTable) Mutate(id string, fn func(*domain.AgentUpdate)) (domain.AgentUpdate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.updates[id]
	if !ok {
		return domain.AgentUpdate{}, false
	}
	cp := *u
	fn(&cp)
	if cp.Status != u.Status && u.Status.Terminal() &&
		!(u.Status == domain.StatusCompleted && cp.Status == domain.StatusRolledBack) {
		return *u, false
	}
	*u = cp
	return *u, true
}

// Claim transitions a scheduled job to downloading so exactly one worker
// executes it. Returns false if the job was already claimed, cancelled, or
// is otherwise past scheduled.
func (t *JobTable) Claim(id string, startedAt time.Time) (domain.AgentUpdate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.updates[id]
	if !ok || u.Status != domain.StatusScheduled {
		return domain.AgentUpdate{}, false
	}
	u.Status = domain.StatusDownloading
	started := startedAt
	u.StartedAt = &started
	return *u, true
}

// Cancel performs the terminal cancelled transition. Only jobs still in
// scheduled or downloading may be cancelled.
func (t *JobTable) Cancel(id string, at time.Time) (domain.AgentUpdate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.updates[id]
	if !ok {
		return domain.AgentUpdate{}, ErrUpdateNotFound
	}
	if !u.Status.Cancellable() {
		return *u, ErrNotCancellable
	}
	u.Status = domain.StatusCancelled
	done := at
	u.CompletedAt = &done
	return *u, nil
}

// Updates returns copies of all jobs in insertion order.
func (t *JobTable) Updates() []domain.AgentUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.AgentUpdate, 0, len(t.order))
	for _, id := range t.order {
		if u, ok := t.updates[id]; ok {
			out = append(out, *u)
		}
	}
	return out
}

// Active returns copies of all non-terminal jobs.
func (t *JobTable) Active() []domain.AgentUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.AgentUpdate
	for _, id := range t.order {
		if u, ok := t.updates[id]; ok && !u.Status.Terminal() {
			out = append(out, *u)
		}
	}
	return out
}

// DueScheduled returns copies of scheduled jobs whose time has come.
func (t *JobTable) DueScheduled(now time.Time) []domain.AgentUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.AgentUpdate
	for _, id := range t.order {
		u, ok := t.updates[id]
		if ok && u.Status == domain.StatusScheduled && !u.ScheduledTime.After(now) {
			out = append(out, *u)
		}
	}
	return out
}

// LatestRollbackCandidate returns the most recent completed job for the
// agent that recorded a backup, if any. Manual rollbacks restore from it.
func (t *JobTable) LatestRollbackCandidate(agentID string) (domain.AgentUpdate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.order) - 1; i >= 0; i-- {
		u, ok := t.updates[t.order[i]]
		if ok && u.AgentID == agentID && u.Status == domain.StatusCompleted && u.BackupRef != "" {
			return *u, true
		}
	}
	return domain.AgentUpdate{}, false
}

// AddRollback records a new rollback operation for its agent.
func (t *JobTable) AddRollback(op *domain.RollbackOperation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *op
	t.rollbacks[op.AgentID] = append(t.rollbacks[op.AgentID], &cp)
}

// MutateRollback applies fn to a rollback operation under the table lock.
func (t *JobTable) MutateRollback(id string, fn func(*domain.RollbackOperation)) (domain.RollbackOperation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ops := range t.rollbacks {
		for _, op := range ops {
			if op.ID == id {
				fn(op)
				return *op, true
			}
		}
	}
	return domain.RollbackOperation{}, false
}

// RollbacksFor returns copies of every rollback recorded for an agent.
func (t *JobTable) RollbacksFor(agentID string) []domain.RollbackOperation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ops := t.rollbacks[agentID]
	out := make([]domain.RollbackOperation, 0, len(ops))
	for _, op := range ops {
		out = append(out, *op)
	}
	return out
}

// AllRollbacks returns copies of every recorded rollback operation.
func (t *JobTable) AllRollbacks() []domain.RollbackOperation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.RollbackOperation
	for _, ops := range t.rollbacks {
		for _, op := range ops {
			out = append(out, *op)
		}
	}
	return out
}
