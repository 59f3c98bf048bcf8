package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	apperrors "github.com/tripfx/tripfx/internal/errors"
	"github.com/tripfx/tripfx/internal/observability"
)

var metricsProxyClient = &http.Client{Timeout: 5 * time.Second}

// hopHeaders are connection-scoped and never copied from the exporter.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// metricsURL resolves the exporter listener. The exporter reports its own
// port once started; before that the configured port is used.
func metricsURL() string {
	port := observability.GetMetricsPort()
	if port == 0 {
		port = viper.GetInt("metrics.port")
	}
	if port == 0 {
		port = observability.DefaultMetricsPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

// MetricsHandler serves the Prometheus exposition on the API listener so
// quota, cache and provider counters scrape from the same port as traffic.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	target := metricsURL()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, proxyEnvelope(apperrors.CodeInternal, "Unable to construct metrics request", target, err))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		apperrors.RespondWithError(w, r, proxyEnvelope(apperrors.CodeExternalService, "Prometheus exporter unavailable", target, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}

func proxyEnvelope(code, message, target string, cause error) *errors.ErrorEnvelope {
	envelope, _ := errors.NewErrorEnvelope(code, message).WithContext(map[string]interface{}{
		"metrics_url":    target,
		"original_error": cause.Error(),
	})
	return envelope
}
