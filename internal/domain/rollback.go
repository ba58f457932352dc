package domain

import "time"

type RollbackType string

const (
	RollbackManual    RollbackType = "manual"
	RollbackAutomatic RollbackType = "automatic"
)

type RollbackStatus string

const (
	RollbackStatusExecuting RollbackStatus = "executing"
	RollbackStatusCompleted RollbackStatus = "completed"
	RollbackStatusFailed    RollbackStatus = "failed"
)

// RollbackOperation is one attempt to restore an agent to a prior version.
// It references exactly one AgentUpdate, the one being undone.
type RollbackOperation struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agent_id"`
	UpdateID     string         `json:"update_id"`
	FromVersion  string         `json:"from_version"`
	ToVersion    string         `json:"to_version"`
	RollbackType RollbackType   `json:"rollback_type"`
	BackupRef    string         `json:"backup_ref"`
	InitiatedBy  string         `json:"initiated_by"`
	Reason       string         `json:"reason"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Status       RollbackStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
