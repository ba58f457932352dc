package domain

import "time"

type UpdateType string

const (
	UpdateCriticalSecurity UpdateType = "critical_security"
	UpdateSecurity         UpdateType = "security"
	UpdateFeature          UpdateType = "feature"
	UpdateExperimental     UpdateType = "experimental"
)

// Requirements an agent must satisfy before a package may be offered to it.
type Requirements struct {
	MinVersion   string            `json:"min_version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Features     []string          `json:"features,omitempty"`
}

// Compatibility restricts which platforms a package applies to.
// An empty platform list means any platform.
type Compatibility struct {
	Platforms []string `json:"platforms,omitempty"`
}

func (c Compatibility) AllowsPlatform(platform string) bool {
	if len(c.Platforms) == 0 {
		return true
	}
	for _, p := range c.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// UpdatePackage is an immutable, checksummed release artifact descriptor
// discovered from the update feed.
type UpdatePackage struct {
	ID                string        `json:"id"`
	Version           string        `json:"version"`
	Channel           Channel       `json:"channel"`
	ReleaseDate       time.Time     `json:"release_date"`
	UpdateType        UpdateType    `json:"update_type"`
	DownloadURL       string        `json:"download_url"`
	Checksum          string        `json:"checksum"`
	SizeBytes         int64         `json:"size_bytes"`
	Description       string        `json:"description,omitempty"`
	Changelog         []string      `json:"changelog,omitempty"`
	Requirements      Requirements  `json:"requirements"`
	Compatibility     Compatibility `json:"compatibility"`
	RollbackSupported bool          `json:"rollback_supported"`
	Critical          bool          `json:"critical"`
	CreatedAt         time.Time     `json:"created_at"`
}

// UpdatePolicy governs whether an update type may be applied unattended and
// how long scheduling is delayed after discovery.
type UpdatePolicy struct {
	AutoApply  bool `json:"auto_apply"`
	DelayHours int  `json:"delay_hours"`
}

// DefaultUpdatePolicies returns the per-type rollout policies: security
// fixes apply on their own, features and experiments wait for an operator
// unless the package is flagged critical.
func DefaultUpdatePolicies() map[UpdateType]UpdatePolicy {
	return map[UpdateType]UpdatePolicy{
		UpdateCriticalSecurity: {AutoApply: true, DelayHours: 0},
		UpdateSecurity:         {AutoApply: true, DelayHours: 2},
		UpdateFeature:          {AutoApply: false, DelayHours: 24},
		UpdateExperimental:     {AutoApply: false, DelayHours: 168},
	}
}
