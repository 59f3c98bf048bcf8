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

// ReadQuotaState returns the persisted quota state of every provider.
func (s *Store) ReadQuotaState(ctx context.Context) (map[string]core.ProviderQuotaState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT provider, exceeded, last_error_at, cooldown_ms
		FROM provider_quota
		ORDER BY provider
	`)
	if err != nil {
		return nil, fmt.Errorf("read quota state: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	states := map[string]core.ProviderQuotaState{}
	for rows.Next() {
		var (
			provider    string
			exceeded    int
			lastErrorAt sql.NullInt64
			cooldownMS  int64
		)
		if err := rows.Scan(&provider, &exceeded, &lastErrorAt, &cooldownMS); err != nil {
			return nil, fmt.Errorf("scan quota state: %w", err)
		}

		state := core.ProviderQuotaState{
			Provider: provider,
			Exceeded: exceeded != 0,
			Cooldown: time.Duration(cooldownMS) * time.Millisecond,
		}
		if lastErrorAt.Valid {
			value := time.UnixMilli(lastErrorAt.Int64).UTC()
			state.LastErrorAt = &value
		}
		states[provider] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read quota state: %w", err)
	}

	return states, nil
}

// WriteQuotaState replaces the persisted quota state in one transaction.
func (s *Store) WriteQuotaState(ctx context.Context, states map[string]core.ProviderQuotaState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write quota state: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_quota`); err != nil {
		return fmt.Errorf("clear quota state: %w", err)
	}

	now := s.now().UnixMilli()
	for name, state := range states {
		provider := strings.ToLower(strings.TrimSpace(name))
		if provider == "" {
			continue
		}

		var lastErrorAt sql.NullInt64
		if state.LastErrorAt != nil {
			lastErrorAt = sql.NullInt64{Int64: state.LastErrorAt.UTC().UnixMilli(), Valid: true}
		}
		exceeded := 0
		if state.Exceeded {
			exceeded = 1
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO provider_quota (provider, exceeded, last_error_at, cooldown_ms, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, provider, exceeded, lastErrorAt, state.Cooldown.Milliseconds(), now); err != nil {
			return fmt.Errorf("store quota state for %s: %w", provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write quota state: %w", err)
	}
	return nil
}
