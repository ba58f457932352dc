package domain

import "time"

type UpdateStatus string

const (
	StatusScheduled   UpdateStatus = "scheduled"
	StatusDownloading UpdateStatus = "downloading"
	StatusInstalling  UpdateStatus = "installing"
	StatusRestarting  UpdateStatus = "restarting"
	StatusVerifying   UpdateStatus = "verifying"
	StatusCompleted   UpdateStatus = "completed"
	StatusFailed      UpdateStatus = "failed"
	StatusCancelled   UpdateStatus = "cancelled"
	StatusRolledBack  UpdateStatus = "rolled_back"
)

// Terminal reports whether a job in this status will never transition again.
func (s UpdateStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRolledBack:
		return true
	}
	return false
}

// Cancellable reports whether a job in this status may still be cancelled.
// Past the install step the only remediation is a rollback.
func (s UpdateStatus) Cancellable() bool {
	return s == StatusScheduled || s == StatusDownloading
}

type Strategy string

const (
	StrategyRolling           Strategy = "rolling"
	StrategyCanary            Strategy = "canary"
	StrategyBlueGreen         Strategy = "blue_green"
	StrategyImmediate         Strategy = "immediate"
	StrategyMaintenanceWindow Strategy = "maintenance_window"
)

// AgentUpdate is one update attempt for one agent. At most one AgentUpdate
// per agent may be non-terminal at any time.
type AgentUpdate struct {
	ID                   string       `json:"id"`
	AgentID              string       `json:"agent_id"`
	PackageID            string       `json:"package_id"`
	FromVersion          string       `json:"from_version"`
	ToVersion            string       `json:"to_version"`
	UpdateType           UpdateType   `json:"update_type"`
	ScheduledTime        time.Time    `json:"scheduled_time"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	Status               UpdateStatus `json:"status"`
	Progress             int          `json:"progress"`
	Strategy             Strategy     `json:"strategy"`
	BackupRef            string       `json:"backup_ref,omitempty"`
	ErrorMessage         string       `json:"error_message,omitempty"`
	AutoRollbackEnabled  bool         `json:"auto_rollback_enabled"`
	RollbackGraceMinutes int          `json:"rollback_grace_minutes"`
	InitiatedBy          string       `json:"initiated_by"`
	Notes                string       `json:"notes,omitempty"`
}
