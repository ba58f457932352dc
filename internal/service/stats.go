package service

import (
	"github.com/Harshitk-cp/updraft/internal/domain"
)

// Statistics is the read-only aggregate view over the registry, job table,
// and catalog. Failures are counted, never hidden or retried silently.
type Statistics struct {
	TotalAgents         int            `json:"total_agents"`
	ActiveUpdates       int            `json:"active_updates"`
	CompletedUpdates    int            `json:"completed_updates"`
	FailedUpdates       int            `json:"failed_updates"`
	CancelledUpdates    int            `json:"cancelled_updates"`
	RolledBackUpdates   int            `json:"rolled_back_updates"`
	UpdateSuccessRate   float64        `json:"update_success_rate"`
	AvailablePackages   int            `json:"available_packages"`
	TotalRollbacks      int            `json:"total_rollbacks"`
	SuccessfulRollbacks int            `json:"successful_rollbacks"`
	RollbackSuccessRate float64        `json:"rollback_success_rate"`
	VersionDistribution map[string]int `json:"version_distribution"`
	ChannelDistribution map[string]int `json:"channel_distribution"`
}

// StatsService derives aggregate counters from the shared control state.
type StatsService struct {
	registry *VersionRegistry
	jobs     *JobTable
	catalog  *UpdateCatalog
}

func NewStatsService(registry *VersionRegistry, jobs *JobTable, catalog *UpdateCatalog) *StatsService {
	return &StatsService{registry: registry, jobs: jobs, catalog: catalog}
}

func (s *StatsService) Snapshot() Statistics {
	stats := Statistics{
		VersionDistribution: make(map[string]int),
		ChannelDistribution: make(map[string]int),
	}

	agents := s.registry.All()
	stats.TotalAgents = len(agents)
	for _, a := range agents {
		stats.VersionDistribution[a.Version]++
		stats.ChannelDistribution[string(a.UpdateChannel)]++
	}

	for _, u := range s.jobs.Updates() {
		switch {
		case !u.Status.Terminal():
			stats.ActiveUpdates++
		case u.Status == domain.StatusCompleted:
			stats.CompletedUpdates++
		case u.Status == domain.StatusFailed:
			stats.FailedUpdates++
		case u.Status == domain.StatusCancelled:
			stats.CancelledUpdates++
		case u.Status == domain.StatusRolledBack:
			stats.RolledBackUpdates++
		}
	}

	if done := stats.CompletedUpdates + stats.FailedUpdates; done > 0 {
		stats.UpdateSuccessRate = float64(stats.CompletedUpdates) / float64(done)
	}

	rollbacks := s.jobs.AllRollbacks()
	stats.TotalRollbacks = len(rollbacks)
	for _, op := range rollbacks {
		if op.Status == domain.RollbackStatusCompleted {
			stats.SuccessfulRollbacks++
		}
	}
	if stats.TotalRollbacks > 0 {
		stats.RollbackSuccessRate = float64(stats.SuccessfulRollbacks) / float64(stats.TotalRollbacks)
	}

	stats.AvailablePackages = len(s.catalog.Packages())
	return stats
}
