package domain

import "context"

// Durable mirrors of the in-memory control state. Writes are best-effort
// and observational: a store failure is logged by the caller and never
// blocks or reverses an in-memory transition.

type AgentVersionStore interface {
	Upsert(ctx context.Context, v *AgentVersion) error
	GetByAgentID(ctx context.Context, agentID string) (*AgentVersion, error)
	List(ctx context.Context) ([]AgentVersion, error)
}

type PackageStore interface {
	Upsert(ctx context.Context, p *UpdatePackage) error
	List(ctx context.Context) ([]UpdatePackage, error)
}

type UpdateStore interface {
	Upsert(ctx context.Context, u *AgentUpdate) error
	GetByID(ctx context.Context, id string) (*AgentUpdate, error)
	ListByAgent(ctx context.Context, agentID string) ([]AgentUpdate, error)
}

type RollbackStore interface {
	Upsert(ctx context.Context, op *RollbackOperation) error
	ListByAgent(ctx context.Context, agentID string) ([]RollbackOperation, error)
}
