package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                UUID        PRIMARY KEY,
  base_file_name    TEXT        NOT NULL,
  uploaded_by       TEXT        NOT NULL,
  original_name     TEXT        NOT NULL,
  mime_type         TEXT        NOT NULL,
  size              BIGINT      NOT NULL CHECK (size >= 0),
  file_hash         TEXT        NOT NULL,
  blob_path         TEXT        NOT NULL UNIQUE,
  blob_id           TEXT        NOT NULL DEFAULT '',
  version           INTEGER     NOT NULL CHECK (version >= 1),
  is_latest_version BOOLEAN     NOT NULL DEFAULT FALSE,
  parent_document   UUID        NULL,
  version_history   JSONB       NOT NULL DEFAULT '[]'::jsonb,
  access_level      TEXT        NOT NULL CHECK (access_level IN ('public', 'private', 'protected')),
  access_pin        TEXT        NULL,
  download_count    BIGINT      NOT NULL DEFAULT 0 CHECK (download_count >= 0),
  category          TEXT        NOT NULL CHECK (category IN ('image', 'pdf', 'document', 'other')),
  description       TEXT        NOT NULL DEFAULT '',
  tags              JSONB       NOT NULL DEFAULT '[]'::jsonb,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT documents_pin_matches_level CHECK ((access_level = 'protected') = (access_pin IS NOT NULL))
);`,
	},
	{
		Name: "create_unique_index_documents_chain_version",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_chain_version ON documents (uploaded_by, base_file_name, version);`,
	},
	{
		Name: "create_unique_index_documents_chain_latest",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_chain_latest ON documents (uploaded_by, base_file_name) WHERE is_latest_version;`,
	},
	{
		Name: "create_index_documents_parent",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents (parent_document);`,
	},
	{
		Name: "create_index_documents_uploaded_by",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_uploaded_by ON documents (uploaded_by);`,
	},
	{
		Name: "create_index_documents_category",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_category ON documents (category);`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at DESC, id DESC);`,
	},
}

const (
	createLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       TEXT        PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	selectApplied = `SELECT name FROM schema_migrations`
	recordApplied = `INSERT INTO schema_migrations (name) VALUES ($1)`
)

// EnsureMigrated applies every step not yet recorded in schema_migrations.
// Each step runs in its own transaction together with its ledger row, so an
// interrupted run resumes at the failed step.
func EnsureMigrated(ctx context.Context, db *sql.DB, log zerolog.Logger, dbHost string) error {
	start := time.Now()
	log = log.With().Str("component", "database").Str("db_host", dbHost).Logger()

	log.Info().Str("event", "db_migration_check").Str("status", "starting").Msg("checking schema")

	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return failed(log, start, "", fmt.Errorf("failed to create migration ledger: %w", err))
	}

	applied, err := appliedSteps(ctx, db)
	if err != nil {
		return failed(log, start, "", err)
	}

	ran := 0
	for _, step := range steps {
		if applied[step.Name] {
			continue
		}
		stepStart := time.Now()
		if err := apply(ctx, db, step); err != nil {
			return failed(log, start, step.Name, err)
		}
		ran++
		log.Info().
			Str("event", "db_migration_step").
			Str("status", "success").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Msg("migration step applied")
	}

	if ran == 0 {
		log.Info().
			Str("event", "db_migration_skip").
			Str("status", "success").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("schema up to date, skipping migration")
		return nil
	}

	log.Info().
		Str("event", "db_migration_success").
		Str("status", "success").
		Int("steps", ran).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("schema migrated")
	return nil
}

func appliedSteps(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, selectApplied)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to read migration ledger: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, step migrationStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration step %s failed: %w", step.Name, err)
	}
	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration step %s failed: %w", step.Name, err)
	}
	if _, err := tx.ExecContext(ctx, recordApplied, step.Name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration step %s failed: %w", step.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration step %s failed: %w", step.Name, err)
	}
	return nil
}

func failed(log zerolog.Logger, start time.Time, step string, err error) error {
	ev := log.Error().
		Str("event", "db_migration_failed").
		Str("status", "error").
		Str("error_message", err.Error()).
		Int64("duration_ms", time.Since(start).Milliseconds())
	if step != "" {
		ev = ev.Str("migration_step", step)
	}
	ev.Msg("migration failed")
	return err
}
