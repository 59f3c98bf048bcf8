package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/core"
)

type memoryQuotaStore struct {
	mu     sync.Mutex
	state  map[string]core.ProviderQuotaState
	writes int
}

func (m *memoryQuotaStore) ReadQuotaState(ctx context.Context) (map[string]core.ProviderQuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]core.ProviderQuotaState, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out, nil
}

func (m *memoryQuotaStore) WriteQuotaState(ctx context.Context, states map[string]core.ProviderQuotaState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = states
	m.writes++
	return nil
}

func TestQuotaTrackerMarkAndCooldown(t *testing.T) {
	store := &memoryQuotaStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := &QuotaTracker{
		Store:    store,
		Cooldown: time.Hour,
		Clock:    func() time.Time { return now },
	}

	require.True(t, tracker.IsAvailable("serpapi"))
	require.NoError(t, tracker.MarkExceeded(context.Background(), "SerpAPI"))
	require.False(t, tracker.IsAvailable("serpapi"))
	require.Equal(t, 1, store.writes)

	persisted := store.state["serpapi"]
	require.True(t, persisted.Exceeded)
	require.NotNil(t, persisted.LastErrorAt)
	require.Equal(t, now, *persisted.LastErrorAt)

	now = now.Add(time.Hour)
	require.False(t, tracker.IsAvailable("serpapi"), "cooldown must strictly elapse")

	now = now.Add(time.Second)
	require.True(t, tracker.IsAvailable("serpapi"))
}

func TestQuotaTrackerLoadAndReset(t *testing.T) {
	last := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memoryQuotaStore{state: map[string]core.ProviderQuotaState{
		"Alphavantage": {Exceeded: true, LastErrorAt: &last},
	}}
	tracker := &QuotaTracker{
		Store: store,
		Clock: func() time.Time { return last.Add(10 * time.Minute) },
	}

	require.NoError(t, tracker.Load(context.Background()))
	assert.False(t, tracker.IsAvailable("alphavantage"))

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "alphavantage", snapshot[0].Provider)

	removed, err := tracker.Reset(context.Background(), "alphavantage")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, tracker.IsAvailable("alphavantage"))
	assert.Empty(t, store.state)
}

func TestQuotaTrackerKeepsResetFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	store := &memoryQuotaStore{}
	server := &QuotaTracker{Store: store}
	admin := &QuotaTracker{Store: store}

	require.NoError(t, server.MarkExceeded(ctx, "serpapi"))

	require.NoError(t, admin.Load(ctx))
	removed, err := admin.Reset(ctx, "serpapi")
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.NoError(t, server.MarkExceeded(ctx, "tequila"))

	states, err := store.ReadQuotaState(ctx)
	require.NoError(t, err)
	assert.NotContains(t, states, "serpapi", "a later mark must not resurrect a reset provider")
	assert.Contains(t, states, "tequila")
	assert.True(t, server.IsAvailable("serpapi"))
	assert.False(t, server.IsAvailable("tequila"))
}

func TestQuotaTrackerWatchReloadsState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &memoryQuotaStore{}
	server := &QuotaTracker{Store: store}
	require.NoError(t, server.MarkExceeded(ctx, "alphavantage"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Watch(ctx, 5*time.Millisecond, func(err error) { t.Errorf("reload: %v", err) })
	}()

	_, err := (&QuotaTracker{Store: store}).Reset(ctx, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return server.IsAvailable("alphavantage") }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestQuotaTrackerNil(t *testing.T) {
	var tracker *QuotaTracker
	assert.True(t, tracker.IsAvailable("any"))
	assert.NoError(t, tracker.MarkExceeded(context.Background(), "any"))
	assert.Nil(t, tracker.Snapshot())
}

func TestQuotaTrackerConcurrentMarks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	tracker := &QuotaTracker{Store: &FileQuotaStore{Path: path}}

	providers := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, name := range providers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, tracker.MarkExceeded(context.Background(), name))
			_ = tracker.IsAvailable(name)
		}(name)
	}
	wg.Wait()

	reloaded := &QuotaTracker{Store: &FileQuotaStore{Path: path}}
	require.NoError(t, reloaded.Load(context.Background()))
	for _, name := range providers {
		assert.False(t, reloaded.IsAvailable(name), name)
	}
}

func TestFileQuotaStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "quota.json")
	store := &FileQuotaStore{Path: path}

	states, err := store.ReadQuotaState(context.Background())
	require.NoError(t, err)
	require.Empty(t, states)

	last := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteQuotaState(context.Background(), map[string]core.ProviderQuotaState{
		"serpapi": {Provider: "serpapi", Exceeded: true, LastErrorAt: &last, Cooldown: time.Hour},
	}))

	states, err = store.ReadQuotaState(context.Background())
	require.NoError(t, err)
	require.Contains(t, states, "serpapi")
	assert.True(t, states["serpapi"].Exceeded)
	assert.True(t, last.Equal(*states["serpapi"].LastErrorAt))
	assert.Equal(t, time.Hour, states["serpapi"].Cooldown)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileQuotaStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := (&FileQuotaStore{Path: path}).ReadQuotaState(context.Background())
	require.Error(t, err)
}
