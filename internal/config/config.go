package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, the user config file,
// TRIPFX_* environment variables and runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Trend     TrendConfig     `mapstructure:"trend"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	RefData   RefDataConfig   `mapstructure:"refdata"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AdminToken enables POST /admin/signal. Falls back to TRIPFX_ADMIN_TOKEN.
	AdminToken string `mapstructure:"admin_token"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig selects the persistent tier and the TTLs per data type.
// Fare data moves faster than rates, so each type has its own pair of TTLs.
type CacheConfig struct {
	// Backend is the persistent tier: store, redis or none.
	Backend         string            `mapstructure:"backend"`
	MaxEntries      int               `mapstructure:"max_entries"`
	Rates           CachePolicyConfig `mapstructure:"rates"`
	Fares           CachePolicyConfig `mapstructure:"fares"`
	Routes          CachePolicyConfig `mapstructure:"routes"`
	Recommendations CachePolicyConfig `mapstructure:"recommendations"`
}

// CachePolicyConfig holds the in-process and persistent TTLs for one data type.
type CachePolicyConfig struct {
	MemoryTTL     time.Duration `mapstructure:"memory_ttl"`
	PersistentTTL time.Duration `mapstructure:"persistent_ttl"`
}

// RedisConfig configures the optional redis persistent tier.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// QuotaConfig configures provider quota tracking.
type QuotaConfig struct {
	// Backend is where quota state is persisted: store, file, redis or none.
	Backend  string        `mapstructure:"backend"`
	Path     string        `mapstructure:"path"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	// RefreshInterval is how often serve reloads persisted state, picking up
	// resets made by other processes. Zero disables reloading.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ProvidersConfig lists the forex and flight providers in priority order.
type ProvidersConfig struct {
	Forex        []ProviderConfig `mapstructure:"forex"`
	Flights      []ProviderConfig `mapstructure:"flights"`
	QuotaMarkers []string         `mapstructure:"quota_markers"`
	Breaker      BreakerConfig    `mapstructure:"breaker"`
}

// ProviderConfig describes a single upstream data vendor.
type ProviderConfig struct {
	// Name identifies the provider in quota state, metrics and logs.
	Name string `mapstructure:"name"`
	// Type selects the client implementation (exchangerate_host, alphavantage, serpapi, tequila).
	Type              string        `mapstructure:"type"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Enabled           bool          `mapstructure:"enabled"`
}

// BreakerConfig configures per-provider circuit breakers.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// RetryConfig is the backoff schedule for transient provider failures.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TrendConfig configures the trend analyzer.
type TrendConfig struct {
	Window        int     `mapstructure:"window"`
	Method        string  `mapstructure:"method"`
	EndpointScale float64 `mapstructure:"endpoint_scale"`
}

// ScoringConfig holds the recommendation score weights and fare factor constants.
type ScoringConfig struct {
	RateWeight    float64 `mapstructure:"rate_weight"`
	TrendWeight   float64 `mapstructure:"trend_weight"`
	FareWeight    float64 `mapstructure:"fare_weight"`
	FareNumerator float64 `mapstructure:"fare_numerator"`
	FareOffset    float64 `mapstructure:"fare_offset"`
}

// RecommendConfig configures the recommendation controller.
type RecommendConfig struct {
	FanoutLimit     int     `mapstructure:"fanout_limit"`
	Concurrency     int     `mapstructure:"concurrency"`
	DefaultLimit    int     `mapstructure:"default_limit"`
	MaxLimit        int     `mapstructure:"max_limit"`
	DefaultLeadDays int     `mapstructure:"default_lead_days"`
	SurrogateFare   float64 `mapstructure:"surrogate_fare"`
}

// FallbackConfig controls the deterministic simulated data used when every provider is exhausted.
type FallbackConfig struct {
	SimulateRates bool `mapstructure:"simulate_rates"`
	SimulateFares bool `mapstructure:"simulate_fares"`
}

// RefDataConfig points at an airport/route network file. Empty uses the built-in network.
type RefDataConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level (simple, structured)
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled forces debug logging regardless of logging.level.
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
