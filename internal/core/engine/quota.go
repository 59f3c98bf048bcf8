package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tripfx/tripfx/internal/core"
)

// DefaultQuotaCooldown is how long an exhausted provider is skipped.
const DefaultQuotaCooldown = time.Hour

// QuotaStore persists provider quota state.
type QuotaStore interface {
	ReadQuotaState(ctx context.Context) (map[string]core.ProviderQuotaState, error)
	WriteQuotaState(ctx context.Context, states map[string]core.ProviderQuotaState) error
}

// QuotaTracker records which providers have exhausted their quota.
//
// Reads take a shared lock and may observe slightly stale state. Mutations
// hold a single writer lock across read, change and write of the store, so
// changes made by another process (quota reset from the CLI) are merged
// rather than overwritten.
type QuotaTracker struct {
	Store    QuotaStore
	Cooldown time.Duration
	Clock    func() time.Time

	mu      sync.RWMutex
	writeMu sync.Mutex
	state   map[string]core.ProviderQuotaState
}

// Load replaces in-memory state with the persisted state.
func (q *QuotaTracker) Load(ctx context.Context) error {
	if q == nil || q.Store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	loaded, err := q.readStore(ctx)
	if err != nil {
		return err
	}
	q.replace(loaded)
	return nil
}

// Watch reloads persisted state every interval until ctx is done, so a
// long-running process picks up resets made elsewhere. Errors go to onErr.
func (q *QuotaTracker) Watch(ctx context.Context, interval time.Duration, onErr func(error)) {
	if q == nil || q.Store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Load(ctx); err != nil && onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
		}
	}
}

// MarkExceeded flags a provider as exhausted as of now and persists the change.
func (q *QuotaTracker) MarkExceeded(ctx context.Context, provider string) error {
	if q == nil {
		return nil
	}
	provider = normalizeProvider(provider)
	if provider == "" {
		return fmt.Errorf("provider is required")
	}

	now := q.now()
	_, err := q.mutate(ctx, func(states map[string]core.ProviderQuotaState) int {
		states[provider] = core.ProviderQuotaState{
			Provider:    provider,
			Exceeded:    true,
			LastErrorAt: &now,
			Cooldown:    q.cooldown(),
		}
		return 1
	})
	return err
}

// mutate applies change to the freshest state: the store when there is one,
// memory otherwise. The result becomes the in-memory state even when the
// write fails, so this process still honors it. change returns how many
// providers it touched; nothing is written when that is zero.
func (q *QuotaTracker) mutate(ctx context.Context, change func(map[string]core.ProviderQuotaState) int) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	states := q.snapshotMap()
	var readErr error
	if q.Store != nil {
		if stored, err := q.readStore(ctx); err == nil {
			states = stored
		} else {
			readErr = err
		}
	}

	touched := change(states)
	if touched == 0 {
		return 0, readErr
	}
	q.replace(states)

	if q.Store == nil {
		return touched, nil
	}
	if err := q.Store.WriteQuotaState(ctx, states); err != nil {
		return touched, fmt.Errorf("persist quota state: %w", err)
	}
	return touched, nil
}

func (q *QuotaTracker) readStore(ctx context.Context) (map[string]core.ProviderQuotaState, error) {
	states, err := q.Store.ReadQuotaState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quota state: %w", err)
	}
	loaded := make(map[string]core.ProviderQuotaState, len(states))
	for name, state := range states {
		name = normalizeProvider(name)
		if name == "" {
			continue
		}
		state.Provider = name
		loaded[name] = state
	}
	return loaded, nil
}

func (q *QuotaTracker) replace(states map[string]core.ProviderQuotaState) {
	q.mu.Lock()
	q.state = states
	q.mu.Unlock()
}

// IsAvailable reports whether a provider may be selected. Exhausted providers
// become available again once the cooldown has elapsed.
func (q *QuotaTracker) IsAvailable(provider string) bool {
	if q == nil {
		return true
	}

	q.mu.RLock()
	state, ok := q.state[normalizeProvider(provider)]
	q.mu.RUnlock()
	if !ok {
		return true
	}

	state.Cooldown = q.cooldown()
	return state.AvailableAt(q.now())
}

// Reset clears the quota state for a provider, or for every provider when
// provider is empty, and persists the change.
func (q *QuotaTracker) Reset(ctx context.Context, provider string) (int, error) {
	if q == nil {
		return 0, nil
	}
	provider = normalizeProvider(provider)

	return q.mutate(ctx, func(states map[string]core.ProviderQuotaState) int {
		if provider == "" {
			removed := len(states)
			for name := range states {
				delete(states, name)
			}
			return removed
		}
		if _, ok := states[provider]; ok {
			delete(states, provider)
			return 1
		}
		return 0
	})
}

// Snapshot returns the tracked states sorted by provider name.
func (q *QuotaTracker) Snapshot() []core.ProviderQuotaState {
	if q == nil {
		return nil
	}
	states := q.snapshotMap()
	out := make([]core.ProviderQuotaState, 0, len(states))
	for _, state := range states {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (q *QuotaTracker) snapshotMap() map[string]core.ProviderQuotaState {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[string]core.ProviderQuotaState, len(q.state))
	for name, state := range q.state {
		if state.LastErrorAt != nil {
			at := *state.LastErrorAt
			state.LastErrorAt = &at
		}
		out[name] = state
	}
	return out
}

func (q *QuotaTracker) cooldown() time.Duration {
	if q.Cooldown > 0 {
		return q.Cooldown
	}
	return DefaultQuotaCooldown
}

func (q *QuotaTracker) now() time.Time {
	if q != nil && q.Clock != nil {
		return q.Clock()
	}
	return time.Now().UTC()
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
