package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
	"github.com/tripfx/tripfx/internal/core/recommend"
	"github.com/tripfx/tripfx/internal/server"
	"github.com/tripfx/tripfx/internal/server/handlers"
)

// offlineConfig returns defaults with no persistent cache and file-backed
// quota state, so nothing outside the test directory is touched.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.LoadFrom(context.Background(), viper.New())
	require.NoError(t, err)
	cfg.Cache.Backend = backendNone
	cfg.Quota.Backend = backendFile
	cfg.Quota.Path = filepath.Join(t.TempDir(), "quota.json")
	cfg.Providers.Breaker.Enabled = false
	return cfg
}

func withoutProviders(cfg *config.Config) *config.Config {
	cfg.Providers.Forex = nil
	cfg.Providers.Flights = nil
	return cfg
}

func TestBuildAppFallsBackToSimulatedData(t *testing.T) {
	stack, err := buildApp(context.Background(), withoutProviders(offlineConfig(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	assert.Nil(t, stack.Store)
	assert.Nil(t, stack.Redis)
	assert.Nil(t, stack.Cache.Persistent)
	assert.Empty(t, stack.Providers[core.ProviderKindForex])

	resp, err := stack.Controller.Generate(context.Background(), recommend.Request{
		BaseCurrency:     "USD",
		DepartureAirport: "JFK",
		Limit:            5,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, recommend.StatusDegraded, resp.Status)
	assert.NotZero(t, resp.Count)
	assert.LessOrEqual(t, resp.Count, 5)
	for _, rec := range resp.Recommendations {
		require.NotNil(t, rec.Fare)
		assert.Equal(t, "USD", rec.Fare.Currency)
	}
}

func TestBuildAppRejectsUnknownBackends(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Cache.Backend = "memcached"
	_, err := buildApp(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported cache backend")

	cfg = offlineConfig(t)
	cfg.Quota.Backend = "etcd"
	_, err = buildApp(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported quota backend")

	cfg = offlineConfig(t)
	cfg.Providers.Forex = append(cfg.Providers.Forex, config.ProviderConfig{Name: "serp", Type: "serpapi", Enabled: true})
	_, err = buildApp(context.Background(), cfg)
	require.ErrorContains(t, err, "configure forex providers")
}

func TestProviderRows(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Providers.Breaker.Enabled = true
	stack, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	require.Equal(t, []string{"exchangerate_host", "alphavantage"}, stack.Providers[core.ProviderKindForex])
	require.Equal(t, []string{"serpapi", "tequila"}, stack.Providers[core.ProviderKindFlights])

	require.NoError(t, stack.Quota.MarkExceeded(context.Background(), "serpapi"))
	require.NoError(t, stack.Quota.MarkExceeded(context.Background(), "retired"))

	rows := stack.providerRows()
	require.Len(t, rows, 5)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	assert.Equal(t, []string{"exchangerate_host", "alphavantage", "serpapi", "tequila", "retired"}, names)

	assert.True(t, rows[0].Available)
	assert.Equal(t, "closed", rows[0].Breaker)
	assert.False(t, rows[2].Available)
	assert.True(t, rows[2].Exceeded)
	assert.NotNil(t, rows[2].LastErrorAt)
	assert.Equal(t, core.ProviderKind(""), rows[4].Kind)

	// A fresh tracker over the same file sees the persisted state.
	reloaded := &engine.QuotaTracker{Store: &engine.FileQuotaStore{Path: cfg.Quota.Path}}
	require.NoError(t, reloaded.Load(context.Background()))
	assert.False(t, reloaded.IsAvailable("serpapi"))
}

func TestRegisterHealthCheckersDegradesWithoutProviders(t *testing.T) {
	stack, err := buildApp(context.Background(), withoutProviders(offlineConfig(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	hm := handlers.NewHealthManager("test")
	stack.registerHealthCheckers(hm)

	rec := httptest.NewRecorder()
	hm.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Checks["forex_providers"])
	assert.Equal(t, "degraded", body.Checks["flights_providers"])
}

func TestServedAPI(t *testing.T) {
	stack, err := buildApp(context.Background(), withoutProviders(offlineConfig(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	ts := httptest.NewServer(server.New("127.0.0.1", 0, stack.api()).Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/api/v1/recommendations?base_currency=EUR&departure_airport=CDG&limit=3")
	require.NoError(t, err)
	var recs recommend.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CDG", recs.DepartureAirport)
	assert.LessOrEqual(t, recs.Count, 3)

	resp, err = ts.Client().Get(ts.URL + "/api/v1/recommendations?base_currency=EUR&departure_airport=ZZZ")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/api/v1/trends/USD/EUR")
	require.NoError(t, err)
	var report recommend.TrendReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "EUR", report.Quote)
	assert.Nil(t, report.Series)
}
