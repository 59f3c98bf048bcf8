package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tripfx/tripfx/internal/core"
)

// RequestIDHeader carries the correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied IDs before they reach logs and
// cached responses.
const maxRequestIDLength = 128

// RequestID assigns every request a correlation ID. A well-formed
// X-Request-ID from the client is kept; otherwise a UUID is generated. The
// ID is echoed in the response header and becomes the recommendation ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = r.Header.Get(RequestIDHeader)
		}
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(core.WithRequestID(r.Context(), requestID)))
	})
}

// GetRequestID returns the correlation ID for ctx, falling back to chi's.
func GetRequestID(ctx context.Context) string {
	if requestID := core.RequestIDFrom(ctx); requestID != "" {
		return requestID
	}
	return middleware.GetReqID(ctx)
}

// validRequestID accepts short printable ASCII IDs only.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
