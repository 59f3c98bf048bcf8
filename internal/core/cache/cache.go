// Package cache implements the two-tier cache: an in-process map in front of
// a persistent store, with deterministic key derivation and per-type TTLs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
)

// DefaultPromoteTTL caps how long a persistent hit lives in memory when Get
// is called without a policy.
const DefaultPromoteTTL = time.Hour

// Tier names reported to Observe.
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"
	TierMiss       = "miss"
)

// PersistentStore is the durable tier. GetEntry returns nil, nil on a miss.
type PersistentStore interface {
	GetEntry(ctx context.Context, key string) (*core.CacheEntry, error)
	PutEntry(ctx context.Context, entry core.CacheEntry) error
	DeleteEntry(ctx context.Context, key string) error
}

// Purger is implemented by persistent stores that support bulk removal.
// With all false only expired entries are removed.
type Purger interface {
	PurgeEntries(ctx context.Context, all bool) (int, error)
}

// Policy holds the TTL of each tier for one data type. A zero TTL skips that tier.
type Policy struct {
	Memory     time.Duration
	Persistent time.Duration
}

// PolicyFromConfig converts a configured TTL pair.
func PolicyFromConfig(cfg config.CachePolicyConfig) Policy {
	return Policy{Memory: cfg.MemoryTTL, Persistent: cfg.PersistentTTL}
}

// Cache checks memory, then the persistent store, promoting persistent hits.
type Cache struct {
	Memory     *Memory
	Persistent PersistentStore
	Logger     engine.Logger
	// Observe is called once per lookup with the tier that answered.
	Observe func(namespace, tier string)
	Clock   func() time.Time

	group singleflight.Group
}

// New returns a cache over the given tiers. persistent may be nil.
func New(memory *Memory, persistent PersistentStore) *Cache {
	if memory == nil {
		memory = NewMemory(DefaultMaxEntries)
	}
	return &Cache{Memory: memory, Persistent: persistent}
}

// Get returns the entry for key from the first tier that holds a valid copy.
func (c *Cache) Get(ctx context.Context, key string) (core.CacheEntry, bool, error) {
	return c.get(ctx, key, DefaultPromoteTTL)
}

// Lookup is Get with promotion bounded by the policy's memory TTL.
func (c *Cache) Lookup(ctx context.Context, key string, policy Policy) (core.CacheEntry, bool, error) {
	return c.get(ctx, key, policy.Memory)
}

// Put writes payload through both tiers.
func (c *Cache) Put(ctx context.Context, key string, payload []byte, policy Policy) error {
	if c == nil {
		return errors.New("cache is not initialized")
	}
	if key == "" {
		return errors.New("cache key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := c.now()
	if policy.Memory > 0 {
		c.Memory.Set(core.CacheEntry{Key: key, Payload: payload, StoredAt: now, TTL: policy.Memory})
	}
	if policy.Persistent > 0 && c.Persistent != nil {
		entry := core.CacheEntry{Key: key, Payload: payload, StoredAt: now, TTL: policy.Persistent}
		if err := c.Persistent.PutEntry(ctx, entry); err != nil {
			return fmt.Errorf("persist cache entry: %w", err)
		}
	}
	return nil
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.Memory.Delete(key)
	if c.Persistent != nil {
		if err := c.Persistent.DeleteEntry(ctx, key); err != nil {
			return fmt.Errorf("delete cache entry: %w", err)
		}
	}
	return nil
}

// GetOrFetch returns the cached payload for key, or runs fetch on a miss and
// writes its result through both tiers before returning. Concurrent misses
// for one key share a single fetch. The bool reports a cache hit.
func (c *Cache) GetOrFetch(ctx context.Context, key string, policy Policy, fetch func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if c == nil {
		return nil, false, errors.New("cache is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if entry, ok, _ := c.get(ctx, key, policy.Memory); ok {
		return entry.Payload, true, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		if entry, ok := c.Memory.Get(key); ok {
			return entry.Payload, nil
		}
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, key, payload, policy); err != nil {
			engine.LoggerOrNop(c.Logger).Warn("Cache write-through failed", zap.String("key", key), zap.Error(err))
		}
		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value.([]byte), false, nil
}

func (c *Cache) get(ctx context.Context, key string, promoteTTL time.Duration) (core.CacheEntry, bool, error) {
	if c == nil || key == "" {
		return core.CacheEntry{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	namespace := namespaceOf(key)

	if entry, ok := c.Memory.Get(key); ok {
		c.observe(namespace, TierMemory)
		return entry, true, nil
	}

	if c.Persistent == nil {
		c.observe(namespace, TierMiss)
		return core.CacheEntry{}, false, nil
	}

	entry, err := c.Persistent.GetEntry(ctx, key)
	if err != nil {
		c.observe(namespace, TierMiss)
		engine.LoggerOrNop(c.Logger).Warn("Persistent cache read failed", zap.String("key", key), zap.Error(err))
		return core.CacheEntry{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	now := c.now()
	if entry == nil || !entry.ValidAt(now) {
		c.observe(namespace, TierMiss)
		return core.CacheEntry{}, false, nil
	}

	c.observe(namespace, TierPersistent)
	c.promote(*entry, now, promoteTTL)
	return *entry, true, nil
}

// promote copies a persistent hit into memory for the shorter of promoteTTL
// and its remaining persistent lifetime. The copy keeps the persistent
// StoredAt so it never replaces a fresher entry written by a concurrent Put.
func (c *Cache) promote(entry core.CacheEntry, now time.Time, promoteTTL time.Duration) {
	if promoteTTL <= 0 {
		return
	}
	ttl := entry.ExpiresAt().Sub(now)
	if promoteTTL < ttl {
		ttl = promoteTTL
	}
	if ttl <= 0 {
		return
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() || storedAt.After(now) {
		storedAt = now
	}
	c.Memory.SetIfNewer(core.CacheEntry{
		Key:      entry.Key,
		Payload:  entry.Payload,
		StoredAt: storedAt,
		TTL:      now.Sub(storedAt) + ttl,
	})
}

func (c *Cache) observe(namespace, tier string) {
	if c.Observe != nil {
		c.Observe(namespace, tier)
	}
}

func (c *Cache) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func namespaceOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == Delimiter[0] {
			return key[:i]
		}
	}
	return key
}
