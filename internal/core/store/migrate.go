package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type migration struct {
	version    int
	name       string
	statements []string
}

// migrations are applied in order, each in its own transaction. Append
// only: an applied version is never edited.
var migrations = []migration{
	{
		version: 1,
		name:    "cache entries and provider quota",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS cache_entries (
				key TEXT PRIMARY KEY,
				namespace TEXT NOT NULL,
				payload BLOB NOT NULL,
				stored_at INTEGER NOT NULL,
				expires_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_cache_entries_namespace ON cache_entries(namespace)`,
			`CREATE TABLE IF NOT EXISTS provider_quota (
				provider TEXT PRIMARY KEY,
				exceeded INTEGER NOT NULL DEFAULT 0,
				last_error_at INTEGER,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "per-provider quota cooldown",
		statements: []string{
			`ALTER TABLE provider_quota ADD COLUMN cooldown_ms INTEGER NOT NULL DEFAULT 0`,
		},
	},
}

// Migrate brings the schema up to the latest version. Safe to call on
// every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("store migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for an empty database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// LatestSchemaVersion is the version Migrate converges to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, s.now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}
