package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/core"
)

type memoryPersistent struct {
	mu      sync.Mutex
	entries map[string]core.CacheEntry
	gets    int
	failGet error
}

func newMemoryPersistent() *memoryPersistent {
	return &memoryPersistent{entries: map[string]core.CacheEntry{}}
}

func (m *memoryPersistent) GetEntry(ctx context.Context, key string) (*core.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failGet != nil {
		return nil, m.failGet
	}
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *memoryPersistent) PutEntry(ctx context.Context, entry core.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	return nil
}

func (m *memoryPersistent) DeleteEntry(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*Cache, *memoryPersistent, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	persistent := newMemoryPersistent()
	memory := NewMemory(16)
	memory.Clock = clock.Now
	c := New(memory, persistent)
	c.Clock = clock.Now
	return c, persistent, clock
}

func TestPutWritesThroughBothTiers(t *testing.T) {
	c, persistent, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "rates|USD", []byte(`1`), Policy{Memory: time.Hour, Persistent: 6 * time.Hour}))

	_, ok := c.Memory.Get("rates|USD")
	require.True(t, ok)
	require.Contains(t, persistent.entries, "rates|USD")
	require.Equal(t, 6*time.Hour, persistent.entries["rates|USD"].TTL)
}

func TestPersistentHitPromotes(t *testing.T) {
	c, persistent, clock := newTestCache()
	ctx := context.Background()

	var tiers []string
	c.Observe = func(namespace, tier string) { tiers = append(tiers, namespace+":"+tier) }

	require.NoError(t, c.Put(ctx, "fares|JFK|LHR", []byte(`500`), Policy{Memory: 15 * time.Minute, Persistent: 3 * time.Hour}))

	clock.Advance(20 * time.Minute)
	entry, ok, err := c.Get(ctx, "fares|JFK|LHR")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`500`), entry.Payload)
	require.Equal(t, 1, persistent.gets)

	entry, ok, err = c.Get(ctx, "fares|JFK|LHR")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, persistent.gets, "second read must be served from memory")

	assert.Equal(t, []string{"fares:persistent", "fares:memory"}, tiers)
}

func TestPromotionNeverOutlivesPersistentEntry(t *testing.T) {
	c, _, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte(`1`), Policy{Persistent: 30 * time.Minute}))
	clock.Advance(25 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	promoted, ok := c.Memory.Get("k")
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(5*time.Minute), promoted.ExpiresAt())

	clock.Advance(6 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

// blockingPersistent hands out a fixed entry once release is closed.
type blockingPersistent struct {
	*memoryPersistent
	stale   core.CacheEntry
	entered chan struct{}
	release chan struct{}
}

func (b *blockingPersistent) GetEntry(ctx context.Context, key string) (*core.CacheEntry, error) {
	close(b.entered)
	<-b.release
	entry := b.stale
	return &entry, nil
}

func TestPromotionDoesNotOverwriteFresherPut(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	persistent := &blockingPersistent{
		memoryPersistent: newMemoryPersistent(),
		stale:            core.CacheEntry{Key: "k", Payload: []byte(`"old"`), StoredAt: clock.Now().Add(-time.Minute), TTL: time.Hour},
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	memory := NewMemory(16)
	memory.Clock = clock.Now
	c := New(memory, persistent)
	c.Clock = clock.Now
	ctx := context.Background()
	policy := Policy{Memory: 10 * time.Minute, Persistent: time.Hour}

	done := make(chan core.CacheEntry)
	go func() {
		entry, _, _ := c.Lookup(ctx, "k", policy)
		done <- entry
	}()

	<-persistent.entered
	clock.Advance(time.Second)
	require.NoError(t, c.Put(ctx, "k", []byte(`"new"`), policy))
	close(persistent.release)
	<-done

	entry, ok := c.Memory.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte(`"new"`), entry.Payload)
}

func TestMemorySetIfNewer(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(4)
	m.Clock = clock.Now
	now := clock.Now()

	require.True(t, m.SetIfNewer(core.CacheEntry{Key: "k", Payload: []byte(`1`), StoredAt: now, TTL: time.Minute}))
	assert.False(t, m.SetIfNewer(core.CacheEntry{Key: "k", Payload: []byte(`0`), StoredAt: now.Add(-time.Second), TTL: time.Hour}))
	assert.False(t, m.SetIfNewer(core.CacheEntry{Key: "k", Payload: []byte(`0`), StoredAt: now, TTL: time.Hour}))
	assert.True(t, m.SetIfNewer(core.CacheEntry{Key: "k", Payload: []byte(`2`), StoredAt: now.Add(time.Second), TTL: time.Minute}))

	entry, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte(`2`), entry.Payload)

	clock.Advance(2 * time.Minute)
	assert.True(t, m.SetIfNewer(core.CacheEntry{Key: "k", Payload: []byte(`3`), StoredAt: now, TTL: time.Hour}), "an expired entry does not block promotion")
}

func TestExpiredEntriesMiss(t *testing.T) {
	c, _, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte(`1`), Policy{Memory: time.Minute, Persistent: time.Hour}))
	clock.Advance(time.Hour)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidateRemovesBothTiers(t *testing.T) {
	c, persistent, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte(`1`), Policy{Memory: time.Minute, Persistent: time.Hour}))
	require.NoError(t, c.Invalidate(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NotContains(t, persistent.entries, "k")
}

func TestGetOrFetchCachesResult(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	policy := Policy{Memory: time.Minute, Persistent: time.Hour}

	calls := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte(`"fresh"`), nil
	}

	payload, hit, err := c.GetOrFetch(ctx, "k", policy, fetch)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, []byte(`"fresh"`), payload)

	payload, hit, err = c.GetOrFetch(ctx, "k", policy, fetch)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []byte(`"fresh"`), payload)
	require.Equal(t, 1, calls)
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	c, persistent, _ := newTestCache()
	ctx := context.Background()

	_, _, err := c.GetOrFetch(ctx, "k", Policy{Memory: time.Minute, Persistent: time.Hour}, func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	})
	require.Error(t, err)
	require.Zero(t, c.Memory.Len())
	require.Empty(t, persistent.entries)
}

func TestGetOrFetchTreatsPersistentErrorsAsMiss(t *testing.T) {
	c, persistent, _ := newTestCache()
	persistent.failGet = errors.New("disk gone")

	payload, hit, err := c.GetOrFetch(context.Background(), "k", Policy{Memory: time.Minute}, func(ctx context.Context) ([]byte, error) {
		return []byte(`1`), nil
	})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, []byte(`1`), payload)
}

func TestGetOrFetchCollapsesConcurrentMisses(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`1`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _, err := c.GetOrFetch(ctx, "k", Policy{Memory: time.Minute}, fetch)
			assert.NoError(t, err)
			assert.Equal(t, []byte(`1`), payload)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, calls.Load(), int32(8))
	require.GreaterOrEqual(t, calls.Load(), int32(1))
	_, ok := c.Memory.Get("k")
	require.True(t, ok)
}

func TestLoadTyped(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	policy := Policy{Memory: time.Minute}

	type payload struct {
		Base  string  `json:"base"`
		Value float64 `json:"value"`
	}

	calls := 0
	fetch := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Base: "USD", Value: 0.92}, nil
	}

	got, hit, err := Load(ctx, c, "k", policy, fetch)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, payload{Base: "USD", Value: 0.92}, got)

	got, hit, err = Load(ctx, c, "k", policy, fetch)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "USD", got.Base)
	require.Equal(t, 1, calls)
}

func TestLoadRefetchesUndecodablePayload(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	policy := Policy{Memory: time.Minute}

	require.NoError(t, c.Put(ctx, "k", []byte(`not json`), policy))

	got, hit, err := Load(ctx, c, "k", policy, func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 7, got)
}

func TestMemoryEvictsOldestWhenFull(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(2)
	m.Clock = clock.Now

	m.Set(core.CacheEntry{Key: "a", StoredAt: clock.Now(), TTL: time.Hour})
	clock.Advance(time.Second)
	m.Set(core.CacheEntry{Key: "b", StoredAt: clock.Now(), TTL: time.Hour})
	clock.Advance(time.Second)
	m.Set(core.CacheEntry{Key: "c", StoredAt: clock.Now(), TTL: time.Hour})

	_, ok := m.Get("a")
	require.False(t, ok)
	_, ok = m.Get("c")
	require.True(t, ok)
	require.Equal(t, 2, m.Len())
}

func TestMemoryPurgePrefersExpired(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(2)
	m.Clock = clock.Now

	m.Set(core.CacheEntry{Key: "long", StoredAt: clock.Now(), TTL: time.Hour})
	m.Set(core.CacheEntry{Key: "short", StoredAt: clock.Now().Add(time.Second), TTL: time.Minute})
	clock.Advance(2 * time.Minute)
	m.Set(core.CacheEntry{Key: "new", StoredAt: clock.Now(), TTL: time.Hour})

	_, ok := m.Get("long")
	require.True(t, ok)
	require.Equal(t, 2, m.Len())
	require.Equal(t, 2, m.Clear())
}
