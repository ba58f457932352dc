package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AgentVersionStore struct {
	db *pgxpool.Pool
}

func NewAgentVersionStore(db *pgxpool.Pool) *AgentVersionStore {
	return &AgentVersionStore{db: db}
}

func (s *AgentVersionStore) Upsert(ctx context.Context, v *domain.AgentVersion) error {
	dependenciesJSON, err := json.Marshal(v.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO agent_versions (
			agent_id, version, build_number, commit_hash, build_date,
			capabilities, dependencies, features, platform, architecture,
			update_channel, last_seen
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (agent_id) DO UPDATE SET
			version = EXCLUDED.version,
			build_number = EXCLUDED.build_number,
			commit_hash = EXCLUDED.commit_hash,
			build_date = EXCLUDED.build_date,
			capabilities = EXCLUDED.capabilities,
			dependencies = EXCLUDED.dependencies,
			features = EXCLUDED.features,
			platform = EXCLUDED.platform,
			architecture = EXCLUDED.architecture,
			update_channel = EXCLUDED.update_channel,
			last_seen = EXCLUDED.last_seen`,
		v.AgentID, v.Version, v.BuildNumber, v.CommitHash, v.BuildDate,
		v.Capabilities, dependenciesJSON, v.Features, v.Platform, v.Architecture,
		v.UpdateChannel, v.LastSeen,
	)
	return err
}

func (s *AgentVersionStore) GetByAgentID(ctx context.Context, agentID string) (*domain.AgentVersion, error) {
	v := &domain.AgentVersion{}
	var dependenciesJSON []byte

	err := s.db.QueryRow(ctx,
		`SELECT agent_id, version, build_number, commit_hash, build_date,
			capabilities, dependencies, features, platform, architecture,
			update_channel, last_seen
		FROM agent_versions WHERE agent_id = $1`,
		agentID,
	).Scan(
		&v.AgentID, &v.Version, &v.BuildNumber, &v.CommitHash, &v.BuildDate,
		&v.Capabilities, &dependenciesJSON, &v.Features, &v.Platform, &v.Architecture,
		&v.UpdateChannel, &v.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(dependenciesJSON) > 0 {
		if err := json.Unmarshal(dependenciesJSON, &v.Dependencies); err != nil {
			return nil, fmt.Errorf("unmarshal dependencies: %w", err)
		}
	}
	return v, nil
}

func (s *AgentVersionStore) List(ctx context.Context) ([]domain.AgentVersion, error) {
	rows, err := s.db.Query(ctx,
		`SELECT agent_id, version, build_number, commit_hash, build_date,
			capabilities, dependencies, features, platform, architecture,
			update_channel, last_seen
		FROM agent_versions ORDER BY agent_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentVersion
	for rows.Next() {
		var v domain.AgentVersion
		var dependenciesJSON []byte
		if err := rows.Scan(
			&v.AgentID, &v.Version, &v.BuildNumber, &v.CommitHash, &v.BuildDate,
			&v.Capabilities, &dependenciesJSON, &v.Features, &v.Platform, &v.Architecture,
			&v.UpdateChannel, &v.LastSeen,
		); err != nil {
			return nil, err
		}
		if len(dependenciesJSON) > 0 {
			if err := json.Unmarshal(dependenciesJSON, &v.Dependencies); err != nil {
				return nil, fmt.Errorf("unmarshal dependencies: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
