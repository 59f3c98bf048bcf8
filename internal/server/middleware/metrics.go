package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/observability"
)

// DataQualityHeader tells API clients how fresh a recommendation or trend
// answer is: live, cached or degraded.
const DataQualityHeader = "X-Data-Quality"

// Values of DataQualityHeader.
const (
	DataQualityLive     = "live"
	DataQualityCached   = "cached"
	DataQualityDegraded = "degraded"
)

// statusRecorder captures what the handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// getEndpointPattern returns the chi route pattern so trend pairs and query
// strings do not become label values.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	case strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	default:
		return "/unknown"
	}
}

// RequestMetrics records request counts, latency and sizes per endpoint,
// plus how many API answers were served degraded or from cache.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(rec.status)
		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   status,
		}
		sizeLabels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		}

		_ = observability.TelemetrySystem.Counter("http_requests_total", 1, labels)
		_ = observability.TelemetrySystem.Histogram("http_request_duration_ms", duration, labels)
		_ = observability.TelemetrySystem.Gauge("http_request_size_bytes", float64(max(r.ContentLength, 0)), sizeLabels)
		_ = observability.TelemetrySystem.Gauge("http_response_size_bytes", float64(rec.bytes), sizeLabels)

		if rec.status >= http.StatusBadRequest {
			errorType := "client_error"
			if rec.status >= http.StatusInternalServerError {
				errorType = "server_error"
			}
			_ = observability.TelemetrySystem.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorType,
			})
		}

		quality := rec.Header().Get(DataQualityHeader)
		if quality != "" {
			_ = observability.TelemetrySystem.Counter("http_data_quality_total", 1, map[string]string{
				"endpoint": endpoint,
				"quality":  quality,
			})
		}

		if observability.ServerLogger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.Int64("response_size", rec.bytes),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		if quality != "" {
			fields = append(fields, zap.String("data_quality", quality))
		}
		// Probes arrive every few seconds; keep them out of info logs.
		if strings.HasPrefix(endpoint, "/health") {
			observability.ServerLogger.Debug("HTTP request completed", fields...)
			return
		}
		observability.ServerLogger.Info("HTTP request completed", fields...)
	})
}
