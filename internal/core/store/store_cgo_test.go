//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/cache"
	"github.com/tripfx/tripfx/internal/core/engine"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations are idempotent")

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion(), version)
	require.NoError(t, store.Close())
}

func TestOpenLocalStoreSerializesWriters(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/tripfx.db",
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	assert.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, localBusyTimeout, busyTimeout)
}

func TestCacheEntries(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.Clock = func() time.Time { return now }

	key := cache.DeriveKey(cache.NamespaceFares, "JFK", "LHR", "2026-04-09", "", "USD")
	entry := core.CacheEntry{Key: key, Payload: []byte(`{"price":512}`), StoredAt: now, TTL: time.Hour}
	require.NoError(t, store.PutEntry(ctx, entry))

	got, err := store.GetEntry(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Payload, got.Payload)
	assert.Equal(t, time.Hour, got.TTL)
	assert.True(t, got.StoredAt.Equal(now))

	stats, err := store.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{cache.NamespaceFares: 1}, stats)

	now = now.Add(2 * time.Hour)
	got, err = store.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "expired entries are misses")

	removed, err := store.PurgeEntries(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestCacheEntriesPurgeAllAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	for _, key := range []string{"rates|USD", "fares|JFK|CDG", "routes|JFK"} {
		require.NoError(t, store.PutEntry(ctx, core.CacheEntry{Key: key, Payload: []byte("{}"), TTL: time.Hour}))
	}
	require.NoError(t, store.DeleteEntry(ctx, "routes|JFK"))
	require.NoError(t, store.DeleteEntry(ctx, "routes|JFK"))

	got, err := store.GetEntry(ctx, "routes|JFK")
	require.NoError(t, err)
	assert.Nil(t, got)

	removed, err := store.PurgeEntries(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestStoreBacksCacheTier(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	first := cache.New(cache.NewMemory(16), store)
	require.NoError(t, first.Put(ctx, "routes|JFK", []byte(`[]`), cache.Policy{Memory: time.Minute, Persistent: time.Hour}))

	// A fresh process sees the entry through the persistent tier.
	second := cache.New(cache.NewMemory(16), store)
	entry, ok, err := second.Get(ctx, "routes|JFK")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`[]`), entry.Payload)
}

func TestQuotaStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tracker := &engine.QuotaTracker{Store: store, Cooldown: 30 * time.Minute, Clock: func() time.Time { return now }}
	require.NoError(t, tracker.MarkExceeded(ctx, "SerpAPI"))

	states, err := store.ReadQuotaState(ctx)
	require.NoError(t, err)
	require.Contains(t, states, "serpapi")
	assert.True(t, states["serpapi"].Exceeded)
	assert.Equal(t, 30*time.Minute, states["serpapi"].Cooldown)
	require.NotNil(t, states["serpapi"].LastErrorAt)
	assert.True(t, states["serpapi"].LastErrorAt.Equal(now))

	restored := &engine.QuotaTracker{Store: store, Clock: func() time.Time { return now.Add(10 * time.Minute) }}
	require.NoError(t, restored.Load(ctx))
	assert.False(t, restored.IsAvailable("serpapi"))

	removed, err := restored.Reset(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	states, err = store.ReadQuotaState(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}
