package domain

import "time"

type Channel string

const (
	ChannelStable  Channel = "stable"
	ChannelBeta    Channel = "beta"
	ChannelAlpha   Channel = "alpha"
	ChannelNightly Channel = "nightly"
)

func ValidChannel(c string) bool {
	switch Channel(c) {
	case ChannelStable, ChannelBeta, ChannelAlpha, ChannelNightly:
		return true
	}
	return false
}

// AgentVersion is the tracked software state of one remote agent. It is
// overwritten whenever the agent reports version metadata; a successful
// update or rollback mutates only Version and LastSeen.
type AgentVersion struct {
	AgentID       string            `json:"agent_id"`
	Version       string            `json:"version"`
	BuildNumber   int               `json:"build_number"`
	CommitHash    string            `json:"commit_hash,omitempty"`
	BuildDate     time.Time         `json:"build_date"`
	Capabilities  []string          `json:"capabilities,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	Features      []string          `json:"features,omitempty"`
	Platform      string            `json:"platform"`
	Architecture  string            `json:"architecture"`
	UpdateChannel Channel           `json:"update_channel"`
	LastSeen      time.Time         `json:"last_seen"`
}

func (v *AgentVersion) HasFeature(name string) bool {
	for _, f := range v.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the registry's internal maps and slices.
func (v *AgentVersion) Clone() *AgentVersion {
	cp := *v
	if v.Capabilities != nil {
		cp.Capabilities = append([]string(nil), v.Capabilities...)
	}
	if v.Features != nil {
		cp.Features = append([]string(nil), v.Features...)
	}
	if v.Dependencies != nil {
		cp.Dependencies = make(map[string]string, len(v.Dependencies))
		for k, val := range v.Dependencies {
			cp.Dependencies[k] = val
		}
	}
	return &cp
}
