package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/core/recommend"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeValidationFailed:   http.StatusBadRequest,
		CodeNoRoutes:           http.StatusNotFound,
		CodeNoRateData:         http.StatusUnprocessableEntity,
		CodeProvidersExhausted: http.StatusServiceUnavailable,
		CodeInternal:           http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatusFromCode(code), code)
	}
}

func TestFromRecommendError(t *testing.T) {
	err := &recommend.Error{Code: recommend.CodeNoRoutes, State: recommend.StateRouteLookup, Message: "no routes found from ZZZ"}
	env := FromRecommendError(context.Background(), fmt.Errorf("generate: %w", err))
	require.NotNil(t, env)
	assert.Equal(t, CodeNoRoutes, env.Code)
	assert.Equal(t, "no routes found from ZZZ", env.Message)
	assert.Equal(t, "ROUTE_LOOKUP", env.Context["state"])
	assert.NotEmpty(t, env.CorrelationID)

	validation := &recommend.Error{
		Code:    recommend.CodeValidationFailed,
		State:   recommend.StateInit,
		Message: "invalid request",
		Err:     fmt.Errorf("%w: BaseCurrency is required", recommend.ErrValidation),
	}
	env = FromRecommendError(context.Background(), validation)
	assert.Equal(t, CodeValidationFailed, env.Code)
	assert.Contains(t, env.Message, "BaseCurrency is required")

	env = FromRecommendError(context.Background(), fmt.Errorf("boom"))
	assert.Equal(t, CodeInternal, env.Code)
}

func TestRespondWithRecommendError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recommendations", nil)

	RespondWithError(rec, req, &recommend.Error{Code: recommend.CodeProvidersExhausted, State: recommend.StateRateLookup, Message: "all forex providers are exhausted"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeProvidersExhausted, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestEnsureEnvelopeWrapsPlainErrors(t *testing.T) {
	env := EnsureEnvelope(fmt.Errorf("disk full"))
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "disk full", env.Context["wrapped_error"])

	same := NewNoRateDataError("no rates")
	assert.Same(t, same, EnsureEnvelope(same))
}
