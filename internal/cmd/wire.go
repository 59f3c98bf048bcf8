package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/cache"
	"github.com/tripfx/tripfx/internal/core/engine"
	"github.com/tripfx/tripfx/internal/core/provider"
	"github.com/tripfx/tripfx/internal/core/recommend"
	"github.com/tripfx/tripfx/internal/core/redisstore"
	"github.com/tripfx/tripfx/internal/core/refdata"
	"github.com/tripfx/tripfx/internal/core/store"
	"github.com/tripfx/tripfx/internal/metrics"
	"github.com/tripfx/tripfx/internal/observability"
	"github.com/tripfx/tripfx/internal/output"
	"github.com/tripfx/tripfx/internal/server/handlers"
)

// Backend names accepted by cache.backend and quota.backend.
const (
	backendStore = "store"
	backendRedis = "redis"
	backendFile  = "file"
	backendNone  = "none"
)

// app is the fully wired recommendation stack shared by serve and the
// one-shot commands.
type app struct {
	Config     *config.Config
	Store      *store.Store
	Redis      *goredis.Client
	RedisStore *redisstore.Store
	Cache      *cache.Cache
	Quota      *engine.QuotaTracker
	Breakers   *engine.BreakerSet
	Forex      *engine.Fetcher
	Flights    *engine.Fetcher
	Routes     *refdata.Dataset
	Controller *recommend.Controller
	// Providers lists enabled provider names by kind, in priority order.
	Providers map[core.ProviderKind][]string
}

// loadApp loads configuration and wires the stack.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return buildApp(ctx, cfg)
}

// buildApp wires every component from cfg. Backing connections are only
// opened when a backend selects them.
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	a := &app{Config: cfg, Providers: map[core.ProviderKind][]string{}}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	logger := observability.CoreLogger()
	cacheBackend := normalizeBackend(cfg.Cache.Backend, backendStore)
	quotaBackend := normalizeBackend(cfg.Quota.Backend, backendStore)

	if cacheBackend == backendStore || quotaBackend == backendStore {
		if a.Store, err = openStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}
	if cacheBackend == backendRedis || quotaBackend == backendRedis {
		if a.RedisStore, a.Redis, err = redisstore.Dial(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}

	var persistent cache.PersistentStore
	switch cacheBackend {
	case backendStore:
		persistent = a.Store
	case backendRedis:
		persistent = a.RedisStore
	case backendNone:
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
	a.Cache = cache.New(cache.NewMemory(cfg.Cache.MaxEntries), persistent)
	a.Cache.Logger = logger
	a.Cache.Observe = metrics.RecordCacheLookup

	a.Quota = &engine.QuotaTracker{Cooldown: cfg.Quota.Cooldown}
	switch quotaBackend {
	case backendStore:
		a.Quota.Store = a.Store
	case backendRedis:
		a.Quota.Store = a.RedisStore
	case backendFile:
		path := strings.TrimSpace(cfg.Quota.Path)
		if path == "" {
			path = config.DefaultQuotaPath()
		}
		a.Quota.Store = &engine.FileQuotaStore{Path: path}
	case backendNone:
	default:
		return nil, fmt.Errorf("unsupported quota backend: %s", cfg.Quota.Backend)
	}
	if err = a.Quota.Load(ctx); err != nil {
		return nil, err
	}

	if cfg.Providers.Breaker.Enabled {
		a.Breakers = engine.NewBreakerSet(cfg.Providers.Breaker.ConsecutiveFailures, cfg.Providers.Breaker.OpenTimeout)
		a.Breakers.OnStateChange = func(name string, from, to gobreaker.State) {
			engine.LoggerOrNop(logger).Warn("Provider circuit breaker changed state",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}

	if a.Forex, err = a.fetcher(core.ProviderKindForex, cfg.Providers.Forex, logger); err != nil {
		return nil, err
	}
	if a.Flights, err = a.fetcher(core.ProviderKindFlights, cfg.Providers.Flights, logger); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RefData.Path) == "" {
		a.Routes, err = refdata.Default()
	} else {
		a.Routes, err = refdata.Open(cfg.RefData.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	a.Controller = recommend.New(cfg, a.Cache, a.Forex, a.Flights, a.Routes)
	a.Controller.Logger = logger
	a.Controller.Observe = metrics.RecordRecommendation
	return a, nil
}

func (a *app) fetcher(kind core.ProviderKind, cfgs []config.ProviderConfig, logger engine.Logger) (*engine.Fetcher, error) {
	providers, err := provider.FromConfig(kind, cfgs, a.Config.Providers.QuotaMarkers)
	if err != nil {
		return nil, fmt.Errorf("configure %s providers: %w", kind, err)
	}
	for _, p := range providers {
		a.Providers[kind] = append(a.Providers[kind], p.Name())
	}

	retry := a.Config.Retry
	return &engine.Fetcher{
		Providers: providers,
		Quota:     a.Quota,
		Breakers:  a.Breakers,
		Backoff: engine.Backoff{
			MaxRetries:   retry.MaxRetries,
			InitialDelay: retry.InitialDelay,
			MaxDelay:     retry.MaxDelay,
		},
		Timeout: retry.Timeout,
		Logger:  logger,
		Observe: func(name string, kind engine.OutcomeKind, elapsed time.Duration) {
			metrics.RecordProviderRequest(name, kind.String(), elapsed)
		},
	}, nil
}

// api exposes the stack to the HTTP server.
func (a *app) api() *handlers.API {
	return &handlers.API{
		Recommender: a.Controller,
		Quota:       a.Quota,
		Breakers:    a.Breakers,
		Providers:   a.Providers,
	}
}

// registerHealthCheckers adds one checker per backing service and provider kind.
func (a *app) registerHealthCheckers(hm *handlers.HealthManager) {
	if a.Store != nil {
		hm.RegisterChecker("store", handlers.PingChecker(a.Store.DB.PingContext))
	}
	if a.Redis != nil {
		hm.RegisterChecker("redis", handlers.PingChecker(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}))
	}
	for _, kind := range []core.ProviderKind{core.ProviderKindForex, core.ProviderKindFlights} {
		hm.RegisterChecker(string(kind)+"_providers", handlers.ProviderChecker{
			Kind:      kind,
			Providers: a.Providers[kind],
			Quota:     a.Quota,
		})
	}
}

// providerRows lists configured providers first, then any provider that only
// remains in persisted quota state.
func (a *app) providerRows() []output.ProviderRow {
	states := map[string]core.ProviderQuotaState{}
	snapshot := a.Quota.Snapshot()
	for _, state := range snapshot {
		states[state.Provider] = state
	}

	rows := []output.ProviderRow{}
	seen := map[string]bool{}
	add := func(name string, kind core.ProviderKind) {
		seen[name] = true
		row := output.ProviderRow{Name: name, Kind: kind, Available: a.Quota.IsAvailable(name)}
		if state, ok := states[name]; ok {
			row.Exceeded = state.Exceeded
			row.LastErrorAt = state.LastErrorAt
			row.Cooldown = state.Cooldown
		}
		if a.Breakers != nil {
			row.Breaker = a.Breakers.State(name)
			if a.Breakers.Open(name) {
				row.Available = false
			}
		}
		rows = append(rows, row)
	}
	for _, kind := range []core.ProviderKind{core.ProviderKindForex, core.ProviderKindFlights} {
		for _, name := range a.Providers[kind] {
			add(name, kind)
		}
	}
	for _, state := range snapshot {
		if !seen[state.Provider] {
			add(state.Provider, "")
		}
	}
	return rows
}

// purger returns the persistent tier when it supports bulk removal.
func (a *app) purger() (cache.Purger, bool) {
	if a.Cache == nil || a.Cache.Persistent == nil {
		return nil, false
	}
	p, ok := a.Cache.Persistent.(cache.Purger)
	return p, ok
}

// Close releases backing connections.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openStore opens the libsql store and applies its schema.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func normalizeBackend(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
