// Package redisstore keeps cache entries and provider quota state in Redis so
// several tripfx instances can share them.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "tripfx:"

// Store is a Redis-backed cache.PersistentStore and engine.QuotaStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	clock     func() time.Time
}

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the key prefix (default "tripfx:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithClock overrides the time source used for remaining-TTL computation.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates a store over a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, keyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the configured server and verifies it answers.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Store, *goredis.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, WithKeyPrefix(cfg.KeyPrefix)), client, nil
}

func (s *Store) cacheKey(key string) string {
	return s.keyPrefix + "cache:" + key
}

func (s *Store) quotaKey() string {
	return s.keyPrefix + "quota"
}

// GetEntry implements cache.PersistentStore.
func (s *Store) GetEntry(ctx context.Context, key string) (*core.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.cacheKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry core.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis decode entry: %w", err)
	}
	return &entry, nil
}

// PutEntry implements cache.PersistentStore. Redis expires the key when the
// entry's TTL runs out.
func (s *Store) PutEntry(ctx context.Context, entry core.CacheEntry) error {
	remaining := entry.ExpiresAt().Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis encode entry: %w", err)
	}
	if err := s.client.Set(ctx, s.cacheKey(entry.Key), data, remaining).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteEntry implements cache.PersistentStore.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// PurgeEntries removes cache keys. Redis drops expired keys itself, so only
// all=true has anything to do.
func (s *Store) PurgeEntries(ctx context.Context, all bool) (int, error) {
	if !all {
		return 0, nil
	}
	removed := 0
	iter := s.client.Scan(ctx, 0, s.cacheKey("*"), 200).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

// ReadQuotaState implements engine.QuotaStore.
func (s *Store) ReadQuotaState(ctx context.Context) (map[string]core.ProviderQuotaState, error) {
	fields, err := s.client.HGetAll(ctx, s.quotaKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	states := make(map[string]core.ProviderQuotaState, len(fields))
	for provider, raw := range fields {
		var state core.ProviderQuotaState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("redis decode quota %s: %w", provider, err)
		}
		state.Provider = provider
		states[provider] = state
	}
	return states, nil
}

// WriteQuotaState implements engine.QuotaStore. The hash is replaced in one
// transaction so readers never see a partial state.
func (s *Store) WriteQuotaState(ctx context.Context, states map[string]core.ProviderQuotaState) error {
	values := make([]any, 0, len(states)*2)
	for provider, state := range states {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("redis encode quota %s: %w", provider, err)
		}
		values = append(values, provider, string(data))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.quotaKey())
		if len(values) > 0 {
			pipe.HSet(ctx, s.quotaKey(), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write quota: %w", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}
