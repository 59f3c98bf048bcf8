//go:build integration

package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/redisstore"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestStore(t *testing.T, client *goredis.Client) *redisstore.Store {
	t.Helper()
	prefix := "test:" + t.Name() + ":"
	s := redisstore.New(client, redisstore.WithKeyPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return s
}

func TestEntryRoundTrip(t *testing.T) {
	client := newTestClient(t)
	store := newTestStore(t, client)
	ctx := context.Background()

	entry := core.CacheEntry{
		Key:      "rates|USD|EUR,GBP|2026-03-01|2026-03-30",
		Payload:  []byte(`{"base":"USD"}`),
		StoredAt: time.Now().UTC().Truncate(time.Second),
		TTL:      time.Hour,
	}
	require.NoError(t, store.PutEntry(ctx, entry))

	got, err := store.GetEntry(ctx, entry.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, entry.Payload, got.Payload)
	require.True(t, entry.StoredAt.Equal(got.StoredAt))

	require.NoError(t, store.DeleteEntry(ctx, entry.Key))
	got, err = store.GetEntry(ctx, entry.Key)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestExpiredEntryIsNotWritten(t *testing.T) {
	client := newTestClient(t)
	store := newTestStore(t, client)
	ctx := context.Background()

	entry := core.CacheEntry{Key: "fares|JFK|LHR", Payload: []byte(`{}`), StoredAt: time.Now().Add(-2 * time.Hour), TTL: time.Hour}
	require.NoError(t, store.PutEntry(ctx, entry))

	got, err := store.GetEntry(ctx, entry.Key)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPurgeAll(t *testing.T) {
	client := newTestClient(t)
	store := newTestStore(t, client)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutEntry(ctx, core.CacheEntry{Key: key, Payload: []byte(`1`), StoredAt: time.Now(), TTL: time.Minute}))
	}

	removed, err := store.PurgeEntries(ctx, false)
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = store.PurgeEntries(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 3, removed)
}

func TestQuotaStateRoundTrip(t *testing.T) {
	client := newTestClient(t)
	store := newTestStore(t, client)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	states := map[string]core.ProviderQuotaState{
		"serpapi": {Provider: "serpapi", Exceeded: true, LastErrorAt: &at, Cooldown: time.Hour},
	}
	require.NoError(t, store.WriteQuotaState(ctx, states))

	got, err := store.ReadQuotaState(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got["serpapi"].Exceeded)
	require.True(t, at.Equal(*got["serpapi"].LastErrorAt))

	require.NoError(t, store.WriteQuotaState(ctx, map[string]core.ProviderQuotaState{}))
	got, err = store.ReadQuotaState(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}
