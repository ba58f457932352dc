package domain

import (
	"context"
	"time"
)

type CommandType string

const (
	CommandCreateBackup     CommandType = "create_backup"
	CommandInstallUpdate    CommandType = "install_update"
	CommandRestartForUpdate CommandType = "restart_for_update"
	CommandVerifyVersion    CommandType = "verify_version"
	CommandExecuteRollback  CommandType = "execute_rollback"
)

// Command is one instruction bound for a remote agent.
type Command struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Type      CommandType    `json:"type"`
	Params    map[string]any `json:"params,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CommandChannel is the external mechanism used to reach agents. Dispatch
// returning true means accepted for delivery, not completed; results arrive
// asynchronously through the StatusChannel.
type CommandChannel interface {
	CreateCommand(ctx context.Context, agentID string, cmdType CommandType, params map[string]any) (*Command, error)
	Dispatch(ctx context.Context, cmd *Command) bool
}

// StatusChannel surfaces the asynchronous agent heartbeat/ack stream that
// the control plane polls for online state, reported versions, and backup
// confirmations.
type StatusChannel interface {
	IsOnline(agentID string) bool
	ReportedVersion(agentID string) (string, bool)
	ConfirmedBackup(agentID string) (string, bool)
}

// Lifecycle notification names broadcast to observers.
const (
	EventUpdateScheduled   = "update_scheduled"
	EventUpdateProgress    = "update_progress"
	EventUpdateCompleted   = "update_completed"
	EventUpdateFailed      = "update_failed"
	EventRollbackStarted   = "rollback_started"
	EventRollbackCompleted = "rollback_completed"
)

// EventSink receives fire-and-forget lifecycle notifications; delivery
// failures are the sink's problem and are never surfaced to callers.
type EventSink interface {
	Emit(event string, payload any)
}

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) Emit(string, any) {}
