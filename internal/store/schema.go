package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the control-plane tables if they do not exist. The
// database mirrors in-memory state for history and audit, so every table
// is keyed by the same IDs the in-memory structures use.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agent_versions (
			agent_id       TEXT PRIMARY KEY,
			version        TEXT NOT NULL,
			build_number   INTEGER NOT NULL DEFAULT 0,
			commit_hash    TEXT NOT NULL DEFAULT '',
			build_date     TIMESTAMPTZ NOT NULL,
			capabilities   TEXT[] NOT NULL DEFAULT '{}',
			dependencies   JSONB NOT NULL DEFAULT '{}',
			features       TEXT[] NOT NULL DEFAULT '{}',
			platform       TEXT NOT NULL,
			architecture   TEXT NOT NULL,
			update_channel TEXT NOT NULL,
			last_seen      TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS update_packages (
			id                 TEXT PRIMARY KEY,
			version            TEXT NOT NULL,
			channel            TEXT NOT NULL,
			release_date       TIMESTAMPTZ NOT NULL,
			update_type        TEXT NOT NULL,
			download_url       TEXT NOT NULL,
			checksum           TEXT NOT NULL,
			size_bytes         BIGINT NOT NULL DEFAULT 0,
			description        TEXT NOT NULL DEFAULT '',
			changelog          TEXT[] NOT NULL DEFAULT '{}',
			requirements       JSONB NOT NULL DEFAULT '{}',
			compatibility      JSONB NOT NULL DEFAULT '{}',
			rollback_supported BOOLEAN NOT NULL DEFAULT FALSE,
			critical           BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS agent_updates (
			id                     TEXT PRIMARY KEY,
			agent_id               TEXT NOT NULL,
			package_id             TEXT NOT NULL,
			from_version           TEXT NOT NULL,
			to_version             TEXT NOT NULL,
			update_type            TEXT NOT NULL,
			scheduled_time         TIMESTAMPTZ NOT NULL,
			started_at             TIMESTAMPTZ,
			completed_at           TIMESTAMPTZ,
			status                 TEXT NOT NULL,
			progress               INTEGER NOT NULL DEFAULT 0,
			strategy               TEXT NOT NULL,
			backup_ref             TEXT NOT NULL DEFAULT '',
			error_message          TEXT NOT NULL DEFAULT '',
			auto_rollback_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
			rollback_grace_minutes INTEGER NOT NULL DEFAULT 30,
			initiated_by           TEXT NOT NULL DEFAULT '',
			notes                  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_agent_updates_agent_id ON agent_updates (agent_id);
		CREATE INDEX IF NOT EXISTS idx_agent_updates_status ON agent_updates (status);

		CREATE TABLE IF NOT EXISTS rollback_operations (
			id            TEXT PRIMARY KEY,
			agent_id      TEXT NOT NULL,
			update_id     TEXT NOT NULL,
			from_version  TEXT NOT NULL,
			to_version    TEXT NOT NULL,
			rollback_type TEXT NOT NULL,
			backup_ref    TEXT NOT NULL DEFAULT '',
			initiated_by  TEXT NOT NULL DEFAULT '',
			reason        TEXT NOT NULL DEFAULT '',
			started_at    TIMESTAMPTZ,
			completed_at  TIMESTAMPTZ,
			status        TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_rollback_operations_agent_id ON rollback_operations (agent_id);
	`)
	return err
}
