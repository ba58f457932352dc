package store

import (
	"context"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RollbackStore struct {
	db *pgxpool.Pool
}

func NewRollbackStore(db *pgxpool.Pool) *RollbackStore {
	return &RollbackStore{db: db}
}

func (s *RollbackStore) Upsert(ctx context.Context, op *domain.RollbackOperation) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO rollback_operations (
			id, agent_id, update_id, from_version, to_version, rollback_type,
			backup_ref, initiated_by, reason, started_at, completed_at,
			status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message`,
		op.ID, op.AgentID, op.UpdateID, op.FromVersion, op.ToVersion, op.RollbackType,
		op.BackupRef, op.InitiatedBy, op.Reason, op.StartedAt, op.CompletedAt,
		op.Status, op.ErrorMessage,
	)
	return err
}

func (s *RollbackStore) ListByAgent(ctx context.Context, agentID string) ([]domain.RollbackOperation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, update_id, from_version, to_version, rollback_type,
			backup_ref, initiated_by, reason, started_at, completed_at,
			status, error_message
		FROM rollback_operations WHERE agent_id = $1
		ORDER BY started_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RollbackOperation
	for rows.Next() {
		var op domain.RollbackOperation
		if err := rows.Scan(
			&op.ID, &op.AgentID, &op.UpdateID, &op.FromVersion, &op.ToVersion, &op.RollbackType,
			&op.BackupRef, &op.InitiatedBy, &op.Reason, &op.StartedAt, &op.CompletedAt,
			&op.Status, &op.ErrorMessage,
		); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
