package command

import (
	"sync"
	"time"
)

const defaultOnlineTTL = 90 * time.Second

type agentStatus struct {
	lastSeen        time.Time
	reportedVersion string
	lastBackup      string
}

// StatusBoard is the control plane's view of the agent heartbeat stream.
// An agent is online while its last heartbeat is within the TTL; version
// reports and backup confirmations ride along on heartbeats.
type StatusBoard struct {
	mu     sync.RWMutex
	agents map[string]*agentStatus

	onlineTTL time.Duration
	now       func() time.Time
}

func NewStatusBoard(onlineTTL time.Duration) *StatusBoard {
	if onlineTTL <= 0 {
		onlineTTL = defaultOnlineTTL
	}
	return &StatusBoard{
		agents:    make(map[string]*agentStatus),
		onlineTTL: onlineTTL,
		now:       time.Now,
	}
}

// ReportHeartbeat records a heartbeat, optionally carrying the version the
// agent currently runs. An empty version leaves the last report intact.
func (b *StatusBoard) ReportHeartbeat(agentID, version string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.agents[agentID]
	if st == nil {
		st = &agentStatus{}
		b.agents[agentID] = st
	}
	st.lastSeen = b.now()
	if version != "" {
		st.reportedVersion = version
	}
}

// ReportBackup records that the agent confirmed writing a backup.
func (b *StatusBoard) ReportBackup(agentID, backupRef string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.agents[agentID]
	if st == nil {
		st = &agentStatus{}
		b.agents[agentID] = st
	}
	st.lastSeen = b.now()
	st.lastBackup = backupRef
}

func (b *StatusBoard) IsOnline(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.agents[agentID]
	return ok && b.now().Sub(st.lastSeen) <= b.onlineTTL
}

func (b *StatusBoard) ReportedVersion(agentID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.agents[agentID]
	if !ok || st.reportedVersion == "" {
		return "", false
	}
	return st.reportedVersion, true
}

func (b *StatusBoard) ConfirmedBackup(agentID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.agents[agentID]
	if !ok || st.lastBackup == "" {
		return "", false
	}
	return st.lastBackup, true
}
