package metrics

import (
	"time"

	"github.com/tripfx/tripfx/internal/observability"
)

// Domain metrics following Prometheus conventions
const (
	ProviderRequestsTotal       = "provider_requests_total"
	ProviderRequestDuration     = "provider_request_duration_ms"
	ProviderQuotaExceededTotal  = "provider_quota_exceeded_total"
	CacheLookupsTotal           = "cache_lookups_total"
	RecommendationsTotal        = "recommendations_total"
	RecommendationDuration      = "recommendation_duration_ms"
	HealthCheckTotal            = "app_health_check_total"
	HealthCheckDuration         = "app_health_check_duration_ms"
	ServerStartTime             = "app_server_start_time_seconds"
	ProviderQuotaExceededStatus = "quota_exceeded"
)

// RecordProviderRequest records one provider call and its classified outcome.
func RecordProviderRequest(provider, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		ProviderRequestsTotal,
		1,
		map[string]string{
			"provider": provider,
			"outcome":  outcome,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		ProviderRequestDuration,
		duration,
		map[string]string{
			"provider": provider,
		},
	)

	if outcome == ProviderQuotaExceededStatus {
		_ = observability.TelemetrySystem.Counter(
			ProviderQuotaExceededTotal,
			1,
			map[string]string{"provider": provider},
		)
	}
}

// RecordCacheLookup records which tier answered a lookup: memory, persistent or miss.
func RecordCacheLookup(namespace, tier string) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		CacheLookupsTotal,
		1,
		map[string]string{
			"namespace": namespace,
			"tier":      tier,
		},
	)
}

// RecordRecommendation records a finished request. Status is ok, degraded or the failure code.
func RecordRecommendation(status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		RecommendationsTotal,
		1,
		map[string]string{"status": status},
	)
	_ = observability.TelemetrySystem.Histogram(
		RecommendationDuration,
		duration,
		map[string]string{"status": status},
	)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
