package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripfx/tripfx/internal/core"
)

// GetEntry returns the cache entry for key, or nil when it is missing or expired.
func (s *Store) GetEntry(ctx context.Context, key string) (*core.CacheEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	var (
		payload   []byte
		storedAt  int64
		expiresAt int64
	)

	now := s.now()
	row := s.DB.QueryRowContext(ctx, `
		SELECT payload, stored_at, expires_at
		FROM cache_entries
		WHERE key = ? AND expires_at > ?
	`, key, now.UnixMilli())

	if err := row.Scan(&payload, &storedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cache entry: %w", err)
	}

	return &core.CacheEntry{
		Key:      key,
		Payload:  payload,
		StoredAt: time.UnixMilli(storedAt).UTC(),
		TTL:      time.Duration(expiresAt-storedAt) * time.Millisecond,
	}, nil
}

// PutEntry stores entry, replacing any previous value for its key.
func (s *Store) PutEntry(ctx context.Context, entry core.CacheEntry) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return errors.New("cache key is required")
	}
	if entry.TTL <= 0 {
		return nil
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = s.now()
	}
	expiresAt := storedAt.Add(entry.TTL)

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cache_entries (key, namespace, payload, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			namespace = excluded.namespace,
			payload = excluded.payload,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, namespaceOf(key), entry.Payload, storedAt.UTC().UnixMilli(), expiresAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}

	return nil
}

// DeleteEntry removes key. Deleting a missing key is not an error.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// PurgeEntries removes expired entries, or every entry when all is set.
func (s *Store) PurgeEntries(ctx context.Context, all bool) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		result sql.Result
		err    error
	)
	if all {
		result, err = s.DB.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		result, err = s.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixMilli())
	}
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	return int(affected), nil
}

// CacheStats counts live entries per namespace.
func (s *Store) CacheStats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT namespace, COUNT(*)
		FROM cache_entries
		WHERE expires_at > ?
		GROUP BY namespace
		ORDER BY namespace
	`, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("count cache entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	stats := map[string]int{}
	for rows.Next() {
		var (
			namespace string
			count     int
		)
		if err := rows.Scan(&namespace, &count); err != nil {
			return nil, fmt.Errorf("count cache entries: %w", err)
		}
		stats[namespace] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count cache entries: %w", err)
	}
	return stats, nil
}

func namespaceOf(key string) string {
	if idx := strings.Index(key, "|"); idx > 0 {
		return key[:idx]
	}
	return key
}
