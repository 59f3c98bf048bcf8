// Package config provides centralized configuration management for tripfx.
// Layers, lowest first: built-in defaults (SetDefaults), the user config file
// discovered by the root command, TRIPFX_* environment variables and runtime
// overrides passed to Load.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/tripfx/tripfx/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// DefaultQuotaMarkers are the error message substrings that classify a
// provider response as quota exhaustion.
var DefaultQuotaMarkers = []string{"quota", "limit exceeded", "credits"}

// SetDefaults registers default values on v. Safe to call repeatedly.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Cache defaults
	v.SetDefault("cache.backend", "store")
	v.SetDefault("cache.max_entries", 4096)
	v.SetDefault("cache.rates.memory_ttl", "1h")
	v.SetDefault("cache.rates.persistent_ttl", "6h")
	v.SetDefault("cache.fares.memory_ttl", "15m")
	v.SetDefault("cache.fares.persistent_ttl", "3h")
	v.SetDefault("cache.routes.memory_ttl", "6h")
	v.SetDefault("cache.routes.persistent_ttl", "24h")
	v.SetDefault("cache.recommendations.memory_ttl", "10m")
	v.SetDefault("cache.recommendations.persistent_ttl", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "tripfx:")

	// Quota defaults
	v.SetDefault("quota.backend", "store")
	v.SetDefault("quota.path", DefaultQuotaPath())
	v.SetDefault("quota.cooldown", "1h")
	v.SetDefault("quota.refresh_interval", "30s")

	// Provider defaults, in priority order
	v.SetDefault("providers.forex", []map[string]any{
		{
			"name":                "exchangerate_host",
			"type":                "exchangerate_host",
			"base_url":            "https://api.exchangerate.host",
			"timeout":             "10s",
			"requests_per_minute": 60,
			"enabled":             true,
		},
		{
			"name":                "alphavantage",
			"type":                "alphavantage",
			"base_url":            "https://www.alphavantage.co",
			"timeout":             "10s",
			"requests_per_minute": 5,
			"enabled":             true,
		},
	})
	v.SetDefault("providers.flights", []map[string]any{
		{
			"name":                "serpapi",
			"type":                "serpapi",
			"base_url":            "https://serpapi.com",
			"timeout":             "15s",
			"requests_per_minute": 30,
			"enabled":             true,
		},
		{
			"name":                "tequila",
			"type":                "tequila",
			"base_url":            "https://api.tequila.kiwi.com",
			"timeout":             "15s",
			"requests_per_minute": 60,
			"enabled":             true,
		},
	})
	v.SetDefault("providers.quota_markers", DefaultQuotaMarkers)
	v.SetDefault("providers.breaker.enabled", true)
	v.SetDefault("providers.breaker.consecutive_failures", 5)
	v.SetDefault("providers.breaker.open_timeout", "2m")

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "2s")
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("retry.timeout", "10s")

	// Trend defaults
	v.SetDefault("trend.window", 30)
	v.SetDefault("trend.method", "regression")
	v.SetDefault("trend.endpoint_scale", 10.0)

	// Scoring defaults
	v.SetDefault("scoring.rate_weight", 0.4)
	v.SetDefault("scoring.trend_weight", 0.4)
	v.SetDefault("scoring.fare_weight", 0.2)
	v.SetDefault("scoring.fare_numerator", 1000.0)
	v.SetDefault("scoring.fare_offset", 100.0)

	// Recommendation defaults
	v.SetDefault("recommend.fanout_limit", 20)
	v.SetDefault("recommend.concurrency", 20)
	v.SetDefault("recommend.default_limit", 10)
	v.SetDefault("recommend.max_limit", 50)
	v.SetDefault("recommend.default_lead_days", 30)
	v.SetDefault("recommend.surrogate_fare", 450.0)

	v.SetDefault("fallback.simulate_rates", true)
	v.SetDefault("fallback.simulate_fares", true)

	v.SetDefault("refdata.path", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// Load decodes the global viper state into a Config.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.GetViper(), runtimeOverrides...)
}

// LoadFrom decodes the settings held by v into a Config.
func LoadFrom(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		return nil, fmt.Errorf("viper instance is required")
	}

	identity, err := appid.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load app identity: %w", err)
	}

	SetDefaults(v)

	merged := v.AllSettings()
	for _, override := range runtimeOverrides {
		mergeSettings(merged, override)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderEnvOverrides(identity.EnvPrefix, cfg.Providers.Forex)
	applyProviderEnvOverrides(identity.EnvPrefix, cfg.Providers.Flights)

	if cfg.Server.AdminToken == "" {
		cfg.Server.AdminToken = strings.TrimSpace(os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN"))
	}
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if len(cfg.Providers.QuotaMarkers) == 0 {
		cfg.Providers.QuotaMarkers = append([]string(nil), DefaultQuotaMarkers...)
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// applyProviderEnvOverrides fills provider credentials from
// {PREFIX}PROVIDERS_{NAME}_API_KEY and {PREFIX}PROVIDERS_{NAME}_BASE_URL.
func applyProviderEnvOverrides(prefix string, providers []ProviderConfig) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	for i := range providers {
		slug := envSlug(providers[i].Name)
		if slug == "" {
			continue
		}
		base := prefix + "PROVIDERS_" + slug + "_"
		if value := strings.TrimSpace(os.Getenv(base + "API_KEY")); value != "" {
			providers[i].APIKey = value
		}
		if value := strings.TrimSpace(os.Getenv(base + "BASE_URL")); value != "" {
			providers[i].BaseURL = value
		}
	}
}

func envSlug(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
}

func mergeSettings(dst map[string]any, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeSettings(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

func configName() string {
	identity, err := appid.Get(context.Background())
	if err != nil || identity == nil || strings.TrimSpace(identity.ConfigName) == "" {
		return "tripfx"
	}
	return identity.ConfigName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(configName())
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(configName())
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./tripfx.db"
	}
	return filepath.Join(dataDir, "tripfx.db")
}

// DefaultQuotaPath returns the path used by the file quota backend.
func DefaultQuotaPath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./quota.json"
	}
	return filepath.Join(dataDir, "quota.json")
}
