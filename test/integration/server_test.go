package integration

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core/cache"
	"github.com/tripfx/tripfx/internal/core/engine"
	"github.com/tripfx/tripfx/internal/core/recommend"
	"github.com/tripfx/tripfx/internal/core/refdata"
	"github.com/tripfx/tripfx/internal/metrics"
	"github.com/tripfx/tripfx/internal/observability"
	"github.com/tripfx/tripfx/internal/server"
	"github.com/tripfx/tripfx/internal/server/handlers"
	"github.com/tripfx/tripfx/internal/server/middleware"
)

// isPermissionError reports sandboxes that refuse loopback sockets.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

func initLoggers() {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "test")
}

// initMetricsOrSkip starts the exporter on a free port and tears it down
// after the test.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("metrics exporter cannot bind: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// offlineAPI wires a recommendation API with no live providers, so every
// answer comes from simulated rates and fares.
func offlineAPI(t *testing.T) *handlers.API {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.LoadFrom(context.Background(), viper.New())
	require.NoError(t, err)
	routes, err := refdata.Default()
	require.NoError(t, err)

	quota := &engine.QuotaTracker{}
	ctrl := recommend.New(cfg,
		cache.New(cache.NewMemory(cfg.Cache.MaxEntries), nil),
		&engine.Fetcher{Quota: quota},
		&engine.Fetcher{Quota: quota},
		routes)
	ctrl.Observe = metrics.RecordRecommendation
	return &handlers.API{Recommender: ctrl, Quota: quota}
}

// newTestServer serves the full router on IPv4 loopback.
func newTestServer(t *testing.T, api *handlers.API) (*httptest.Server, *http.Client) {
	t.Helper()
	handlers.InitHealthManager("test")
	srv := server.New("127.0.0.1", 0, api)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("loopback listener refused: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: srv.Handler()}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func get(t *testing.T, client *http.Client, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func TestRecommendationRoundTrip(t *testing.T) {
	initLoggers()
	ts, client := newTestServer(t, offlineAPI(t))
	url := ts.URL + "/api/v1/recommendations?base_currency=usd&departure_airport=jfk&limit=4"

	resp, body := get(t, client, url, http.Header{middleware.RequestIDHeader: {"trip-first"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "trip-first", resp.Header.Get(middleware.RequestIDHeader))

	var first recommend.Response
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "trip-first", first.ID)
	assert.Equal(t, "USD", first.BaseCurrency)
	assert.Equal(t, "JFK", first.DepartureAirport)
	assert.LessOrEqual(t, first.Count, 4)
	for i := 1; i < len(first.Recommendations); i++ {
		assert.GreaterOrEqual(t, first.Recommendations[i-1].Score, first.Recommendations[i].Score)
	}

	resp, body = get(t, client, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second recommend.Response
	require.NoError(t, json.Unmarshal(body, &second))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Recommendations, second.Recommendations)

	resp, _ = get(t, client, ts.URL+"/api/v1/recommendations?base_currency=USD&departure_airport=ZZZ", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, client, ts.URL+"/api/v1/recommendations?base_currency=XYZ&departure_airport=JFK", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsAfterTraffic(t *testing.T) {
	initLoggers()
	initMetricsOrSkip(t)
	ts, client := newTestServer(t, offlineAPI(t))

	paths := []string{
		"/api/v1/recommendations?base_currency=USD&departure_airport=JFK&limit=3",
		"/api/v1/trends/EUR/GBP",
		"/api/v1/recommendations?base_currency=USD&departure_airport=ZZZ",
		"/api/v1/providers/quota",
	}
	const requests = 40
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if resp, err := client.Get(ts.URL + path); err == nil {
				_ = resp.Body.Close()
			}
		}(paths[i%len(paths)])
	}
	wg.Wait()
	elapsed := time.Since(start)

	resp, body := get(t, client, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	exposition := string(body)
	for _, name := range []string{
		"test_http_requests_total",
		"test_http_request_duration_ms",
		"test_http_data_quality_total",
		"test_" + metrics.RecommendationsTotal,
		"test_" + metrics.ErrorsTotalName,
	} {
		assert.Contains(t, exposition, name)
	}
	assert.Less(t, elapsed, 5*time.Second)
	t.Logf("%d requests in %v", requests, elapsed)
}

func TestMetricsUnavailableWithoutExporter(t *testing.T) {
	initLoggers()
	originalExporter, originalTelemetry := observability.PrometheusExporter, observability.TelemetrySystem
	observability.PrometheusExporter, observability.TelemetrySystem = nil, nil
	t.Cleanup(func() {
		observability.PrometheusExporter, observability.TelemetrySystem = originalExporter, originalTelemetry
	})

	ts, client := newTestServer(t, offlineAPI(t))

	resp, _ := get(t, client, ts.URL+"/api/v1/providers/quota", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, client, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
