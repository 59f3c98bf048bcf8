package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("tripfx"), "tripfx.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)

		assert.Equal(t, "store", cfg.Cache.Backend)
		assert.Equal(t, time.Hour, cfg.Cache.Rates.MemoryTTL)
		assert.Equal(t, 6*time.Hour, cfg.Cache.Rates.PersistentTTL)
		assert.Equal(t, 15*time.Minute, cfg.Cache.Fares.MemoryTTL)
		assert.Equal(t, 3*time.Hour, cfg.Cache.Fares.PersistentTTL)
		assert.Less(t, cfg.Cache.Fares.MemoryTTL, cfg.Cache.Rates.MemoryTTL)

		assert.Equal(t, time.Hour, cfg.Quota.Cooldown)
		assert.Equal(t, 30*time.Second, cfg.Quota.RefreshInterval)
		assert.Equal(t, 3, cfg.Retry.MaxRetries)
		assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
		assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay)

		assert.Equal(t, 30, cfg.Trend.Window)
		assert.Equal(t, "regression", cfg.Trend.Method)
		assert.InDelta(t, 0.4, cfg.Scoring.RateWeight, 1e-9)
		assert.InDelta(t, 0.4, cfg.Scoring.TrendWeight, 1e-9)
		assert.InDelta(t, 0.2, cfg.Scoring.FareWeight, 1e-9)

		assert.Equal(t, 20, cfg.Recommend.FanoutLimit)
		assert.Equal(t, 10, cfg.Recommend.DefaultLimit)
		assert.True(t, cfg.Fallback.SimulateFares)

		require.Len(t, cfg.Providers.Forex, 2)
		assert.Equal(t, "exchangerate_host", cfg.Providers.Forex[0].Name)
		assert.Equal(t, 10*time.Second, cfg.Providers.Forex[0].Timeout)
		require.Len(t, cfg.Providers.Flights, 2)
		assert.Equal(t, "serpapi", cfg.Providers.Flights[0].Name)
		assert.Equal(t, DefaultQuotaMarkers, cfg.Providers.QuotaMarkers)
	})

	t.Run("ProviderKeysFromEnv", func(t *testing.T) {
		t.Setenv("TRIPFX_PROVIDERS_ALPHAVANTAGE_API_KEY", "av-key")
		t.Setenv("TRIPFX_PROVIDERS_SERPAPI_BASE_URL", "http://127.0.0.1:9999")

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)

		assert.Equal(t, "av-key", cfg.Providers.Forex[1].APIKey)
		assert.Empty(t, cfg.Providers.Forex[0].APIKey)
		assert.Equal(t, "http://127.0.0.1:9999", cfg.Providers.Flights[0].BaseURL)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		cfg, err := LoadFrom(ctx, viper.New(), map[string]any{
			"server":    map[string]any{"port": 9191},
			"recommend": map[string]any{"fanout_limit": 5},
			"cache":     map[string]any{"fares": map[string]any{"memory_ttl": "5m"}},
		})
		require.NoError(t, err)

		assert.Equal(t, 9191, cfg.Server.Port)
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 5, cfg.Recommend.FanoutLimit)
		assert.Equal(t, 5*time.Minute, cfg.Cache.Fares.MemoryTTL)
		assert.Equal(t, 3*time.Hour, cfg.Cache.Fares.PersistentTTL)
	})

	t.Run("ConfigFileValues", func(t *testing.T) {
		v := viper.New()
		v.Set("trend.method", "endpoint")
		v.Set("scoring.fare_weight", 0.3)

		cfg, err := LoadFrom(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, "endpoint", cfg.Trend.Method)
		assert.InDelta(t, 0.3, cfg.Scoring.FareWeight, 1e-9)
		assert.Same(t, cfg, GetConfig())
	})
}

func TestEnvSlug(t *testing.T) {
	assert.Equal(t, "EXCHANGERATE_HOST", envSlug(" exchangerate-host "))
	assert.Equal(t, "", envSlug(""))
}

func TestAdminTokenFallsBackToEnv(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("TRIPFX_ADMIN_TOKEN", "from-env")

	cfg, err := LoadFrom(context.Background(), viper.New())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.AdminToken)

	v := viper.New()
	v.Set("server.admin_token", "from-file")
	cfg, err = LoadFrom(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Server.AdminToken)
}
