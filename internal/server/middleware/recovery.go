package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/metrics"
	"github.com/tripfx/tripfx/internal/observability"
)

// panicResponse mirrors the API error body. It is built here because the
// shared responder in internal/errors imports this package.
type panicResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// Recovery turns a panic in a handler into a 500 envelope. The stack is
// logged, never returned to the caller.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			requestID := GetRequestID(r.Context())
			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").
				WithCorrelationID(requestID)
			envelope, _ = envelope.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()
			if logger := observability.ServerLogger; logger != nil {
				logger.Error("Handler panic recovered",
					zap.String("request_id", requestID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprint(recovered)),
					zap.String("stack", string(debug.Stack())))
			}

			var body panicResponse
			body.Error.Code = envelope.Code
			body.Error.Message = envelope.Message
			body.Error.RequestID = envelope.CorrelationID

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(body)
		}()

		next.ServeHTTP(w, r)
	})
}
