package service

import (
	"github.com/Harshitk-cp/updraft/internal/domain"
)

// Evaluator decides whether an agent should receive a candidate package.
// ShouldUpdate is pure and side-effect-free; all checks are ANDed with no
// partial-credit scoring.
type Evaluator struct {
	policies map[domain.UpdateType]domain.UpdatePolicy
}

func NewEvaluator(policies map[domain.UpdateType]domain.UpdatePolicy) *Evaluator {
	if policies == nil {
		policies = domain.DefaultUpdatePolicies()
	}
	return &Evaluator{policies: policies}
}

// ShouldUpdate reports whether pkg should be scheduled for agent.
// hasActiveUpdate is the caller's view of the job table: an agent with a
// non-terminal update never takes another.
func (e *Evaluator) ShouldUpdate(agent *domain.AgentVersion, pkg *domain.UpdatePackage, hasActiveUpdate bool) bool {
	if agent == nil || pkg == nil {
		return false
	}

	if agent.UpdateChannel != pkg.Channel {
		return false
	}

	if !domain.IsNewer(pkg.Version, agent.Version) {
		return false
	}

	if !pkg.Compatibility.AllowsPlatform(agent.Platform) {
		return false
	}

	if !e.meetsRequirements(agent, pkg.Requirements) {
		return false
	}

	// Non-critical packages may only apply unattended if the type policy
	// allows it.
	policy := e.policies[pkg.UpdateType]
	if !policy.AutoApply && !pkg.Critical {
		return false
	}

	return !hasActiveUpdate
}

func (e *Evaluator) meetsRequirements(agent *domain.AgentVersion, req domain.Requirements) bool {
	// The agent must be at least the package's floor version.
	if req.MinVersion != "" && domain.IsNewer(req.MinVersion, agent.Version) {
		return false
	}

	// Every required dependency must be present, equal-or-newer.
	for name, required := range req.Dependencies {
		have, ok := agent.Dependencies[name]
		if !ok || domain.IsNewer(required, have) {
			return false
		}
	}

	for _, feature := range req.Features {
		if !agent.HasFeature(feature) {
			return false
		}
	}

	return true
}

// PolicyDelayHours returns the scheduling delay for an update type.
// Critical packages override the delay to zero regardless of type.
func (e *Evaluator) PolicyDelayHours(pkg *domain.UpdatePackage) int {
	if pkg.Critical {
		return 0
	}
	if policy, ok := e.policies[pkg.UpdateType]; ok {
		return policy.DelayHours
	}
	return domain.DefaultUpdatePolicies()[domain.UpdateFeature].DelayHours
}
