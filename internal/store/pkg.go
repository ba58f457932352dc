package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PackageStore struct {
	db *pgxpool.Pool
}

func NewPackageStore(db *pgxpool.Pool) *PackageStore {
	return &PackageStore{db: db}
}

func (s *PackageStore) Upsert(ctx context.Context, p *domain.UpdatePackage) error {
	requirementsJSON, err := json.Marshal(p.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}
	compatibilityJSON, err := json.Marshal(p.Compatibility)
	if err != nil {
		return fmt.Errorf("marshal compatibility: %w", err)
	}

	// Packages are immutable once discovered, so a conflict is a no-op
	// rather than an overwrite.
	_, err = s.db.Exec(ctx,
		`INSERT INTO update_packages (
			id, version, channel, release_date, update_type, download_url,
			checksum, size_bytes, description, changelog, requirements,
			compatibility, rollback_supported, critical, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Version, p.Channel, p.ReleaseDate, p.UpdateType, p.DownloadURL,
		p.Checksum, p.SizeBytes, p.Description, p.Changelog, requirementsJSON,
		compatibilityJSON, p.RollbackSupported, p.Critical,
	)
	return err
}

func (s *PackageStore) List(ctx context.Context) ([]domain.UpdatePackage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, version, channel, release_date, update_type, download_url,
			checksum, size_bytes, description, changelog, requirements,
			compatibility, rollback_supported, critical, created_at
		FROM update_packages ORDER BY release_date DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UpdatePackage
	for rows.Next() {
		var p domain.UpdatePackage
		var requirementsJSON, compatibilityJSON []byte
		if err := rows.Scan(
			&p.ID, &p.Version, &p.Channel, &p.ReleaseDate, &p.UpdateType, &p.DownloadURL,
			&p.Checksum, &p.SizeBytes, &p.Description, &p.Changelog, &requirementsJSON,
			&compatibilityJSON, &p.RollbackSupported, &p.Critical, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(requirementsJSON) > 0 {
			if err := json.Unmarshal(requirementsJSON, &p.Requirements); err != nil {
				return nil, fmt.Errorf("unmarshal requirements: %w", err)
			}
		}
		if len(compatibilityJSON) > 0 {
			if err := json.Unmarshal(compatibilityJSON, &p.Compatibility); err != nil {
				return nil, fmt.Errorf("unmarshal compatibility: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
