package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UpdateStore struct {
	db *pgxpool.Pool
}

func NewUpdateStore(db *pgxpool.Pool) *UpdateStore {
	return &UpdateStore{db: db}
}

func (s *UpdateStore) Upsert(ctx context.Context, u *domain.AgentUpdate) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO agent_updates (
			id, agent_id, package_id, from_version, to_version, update_type,
			scheduled_time, started_at, completed_at, status, progress,
			strategy, backup_ref, error_message, auto_rollback_enabled,
			rollback_grace_minutes, initiated_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			backup_ref = EXCLUDED.backup_ref,
			error_message = EXCLUDED.error_message,
			notes = EXCLUDED.notes`,
		u.ID, u.AgentID, u.PackageID, u.FromVersion, u.ToVersion, u.UpdateType,
		u.ScheduledTime, u.StartedAt, u.CompletedAt, u.Status, u.Progress,
		u.Strategy, u.BackupRef, u.ErrorMessage, u.AutoRollbackEnabled,
		u.RollbackGraceMinutes, u.InitiatedBy, u.Notes,
	)
	return err
}

func (s *UpdateStore) GetByID(ctx context.Context, id string) (*domain.AgentUpdate, error) {
	u := &domain.AgentUpdate{}
	err := s.db.QueryRow(ctx,
		`SELECT id, agent_id, package_id, from_version, to_version, update_type,
			scheduled_time, started_at, completed_at, status, progress,
			strategy, backup_ref, error_message, auto_rollback_enabled,
			rollback_grace_minutes, initiated_by, notes
		FROM agent_updates WHERE id = $1`,
		id,
	).Scan(
		&u.ID, &u.AgentID, &u.PackageID, &u.FromVersion, &u.ToVersion, &u.UpdateType,
		&u.ScheduledTime, &u.StartedAt, &u.CompletedAt, &u.Status, &u.Progress,
		&u.Strategy, &u.BackupRef, &u.ErrorMessage, &u.AutoRollbackEnabled,
		&u.RollbackGraceMinutes, &u.InitiatedBy, &u.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *UpdateStore) ListByAgent(ctx context.Context, agentID string) ([]domain.AgentUpdate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, package_id, from_version, to_version, update_type,
			scheduled_time, started_at, completed_at, status, progress,
			strategy, backup_ref, error_message, auto_rollback_enabled,
			rollback_grace_minutes, initiated_by, notes
		FROM agent_updates WHERE agent_id = $1
		ORDER BY scheduled_time DESC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentUpdate
	for rows.Next() {
		var u domain.AgentUpdate
		if err := rows.Scan(
			&u.ID, &u.AgentID, &u.PackageID, &u.FromVersion, &u.ToVersion, &u.UpdateType,
			&u.ScheduledTime, &u.StartedAt, &u.CompletedAt, &u.Status, &u.Progress,
			&u.Strategy, &u.BackupRef, &u.ErrorMessage, &u.AutoRollbackEnabled,
			&u.RollbackGraceMinutes, &u.InitiatedBy, &u.Notes,
		); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
