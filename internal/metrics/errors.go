package metrics

import (
	"strconv"

	"github.com/tripfx/tripfx/internal/observability"
)

// Error metric names.
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordError counts an error response by envelope code and HTTP status.
// A NO_ROUTES at 404 and a PROVIDERS_EXHAUSTED at 503 are separate series.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotalName, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a handler panic caught by the recovery middleware.
func RecordPanic() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
}

// RecordErrorByEndpoint counts an error response per request path.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsByEndpointName, 1, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}
