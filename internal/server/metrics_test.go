package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubExporter(t *testing.T, transport roundTripFunc) {
	t.Helper()
	originalClient := metricsProxyClient
	metricsProxyClient = &http.Client{Transport: transport}
	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
	t.Cleanup(func() {
		metricsProxyClient = originalClient
		observability.PrometheusExporter = nil
	})
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error.Code
}

func TestMetricsHandlerProxiesPrometheusOutput(t *testing.T) {
	stubExporter(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "text/plain", req.Header.Get("Accept"))
		body := "# HELP quota_rejections_total Calls refused by the quota tracker\nquota_rejections_total 2\n"
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}
		resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
		resp.Header.Set("Connection", "close")
		return resp, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()
	MetricsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Contains(t, rec.Body.String(), "quota_rejections_total 2")
}

func TestMetricsHandlerDefaultsContentType(t *testing.T) {
	stubExporter(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("up 1\n")),
			Header:     make(http.Header),
		}, nil
	})

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
}

func TestMetricsHandlerReportsExporterFailure(t *testing.T) {
	stubExporter(t, func(req *http.Request) (*http.Response, error) {
		return nil, stderrors.New("connection refused")
	})

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", decodeErrorCode(t, rec))
}

func TestMetricsHandlerReturnsServiceUnavailableWithoutExporter(t *testing.T) {
	observability.PrometheusExporter = nil

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeErrorCode(t, rec))
}
