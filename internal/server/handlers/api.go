package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/recommend"
	apperrors "github.com/tripfx/tripfx/internal/errors"
	"github.com/tripfx/tripfx/internal/server/middleware"
)

// maxBodyBytes bounds recommendation request bodies.
const maxBodyBytes = 1 << 16

// Recommender produces recommendations and pair trends. *recommend.Controller satisfies it.
type Recommender interface {
	Generate(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	Trend(ctx context.Context, req recommend.TrendRequest) (*recommend.TrendReport, error)
}

// QuotaSource exposes provider quota state. *engine.QuotaTracker satisfies it.
type QuotaSource interface {
	Snapshot() []core.ProviderQuotaState
	IsAvailable(provider string) bool
}

// BreakerSource reports circuit breaker state per provider.
type BreakerSource interface {
	State(provider string) string
}

// API serves the recommendation endpoints.
type API struct {
	Recommender Recommender
	Quota       QuotaSource
	Breakers    BreakerSource
	// Providers lists configured provider names by kind for the quota listing.
	Providers map[core.ProviderKind][]string
}

// ProviderStatus is one row of the quota listing.
type ProviderStatus struct {
	Name      string                   `json:"name"`
	Kind      core.ProviderKind        `json:"kind"`
	Available bool                     `json:"available"`
	Breaker   string                   `json:"breaker,omitempty"`
	Quota     *core.ProviderQuotaState `json:"quota,omitempty"`
}

// QuotaResponse lists provider availability.
type QuotaResponse struct {
	Providers []ProviderStatus `json:"providers"`
}

// Routes mounts the API under the router it is given.
func (a *API) Routes(r chi.Router) {
	r.Post("/recommendations", a.PostRecommendations)
	r.Get("/recommendations", a.GetRecommendations)
	r.Get("/trends/{base}/{quote}", a.GetTrend)
	r.Get("/providers/quota", a.GetQuota)
}

// PostRecommendations handles a JSON recommendation request.
func (a *API) PostRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommend.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON recommendation request"))
		return
	}
	a.generate(w, r, req)
}

// GetRecommendations handles a recommendation request expressed as query parameters.
func (a *API) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := recommend.Request{
		BaseCurrency:     query.Get("base_currency"),
		DepartureAirport: query.Get("departure_airport"),
		OutboundDate:     query.Get("outbound_date"),
		ReturnDate:       query.Get("return_date"),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, "limit must be an integer"))
			return
		}
		req.Limit = limit
	}
	a.generate(w, r, req)
}

func (a *API) generate(w http.ResponseWriter, r *http.Request, req recommend.Request) {
	if a == nil || a.Recommender == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("recommendations are not configured"))
		return
	}

	resp, err := a.Recommender.Generate(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	setDataQuality(w, resp.Degraded, resp.Cached)
	writeJSON(w, http.StatusOK, resp)
}

// GetTrend reports the trend of one currency pair.
func (a *API) GetTrend(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Recommender == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("trends are not configured"))
		return
	}

	report, err := a.Recommender.Trend(r.Context(), recommend.TrendRequest{
		Base:  chi.URLParam(r, "base"),
		Quote: chi.URLParam(r, "quote"),
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if r.URL.Query().Get("series") != "true" {
		report.Series = nil
	}
	setDataQuality(w, report.Degraded, false)
	writeJSON(w, http.StatusOK, report)
}

// GetQuota lists configured providers with their quota and breaker state.
func (a *API) GetQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, QuotaResponse{Providers: a.providerStatuses()})
}

func (a *API) providerStatuses() []ProviderStatus {
	if a == nil {
		return []ProviderStatus{}
	}

	var snapshot []core.ProviderQuotaState
	if a.Quota != nil {
		snapshot = a.Quota.Snapshot()
	}
	states := make(map[string]core.ProviderQuotaState, len(snapshot))
	for _, state := range snapshot {
		states[state.Provider] = state
	}

	out := []ProviderStatus{}
	seen := map[string]bool{}
	for _, kind := range []core.ProviderKind{core.ProviderKindForex, core.ProviderKindFlights} {
		for _, name := range a.Providers[kind] {
			seen[name] = true
			out = append(out, a.status(name, kind, states))
		}
	}
	// Quota state may outlive a provider's removal from configuration.
	for _, state := range snapshot {
		if !seen[state.Provider] {
			out = append(out, a.status(state.Provider, "", states))
		}
	}
	return out
}

func (a *API) status(name string, kind core.ProviderKind, states map[string]core.ProviderQuotaState) ProviderStatus {
	status := ProviderStatus{Name: name, Kind: kind, Available: true}
	if state, ok := states[name]; ok {
		status.Quota = &state
	}
	if a.Quota != nil {
		status.Available = a.Quota.IsAvailable(name)
	}
	if a.Breakers != nil {
		status.Breaker = a.Breakers.State(name)
		if status.Breaker == "open" {
			status.Available = false
		}
	}
	return status
}

func setDataQuality(w http.ResponseWriter, degraded, cached bool) {
	quality := middleware.DataQualityLive
	switch {
	case degraded:
		quality = middleware.DataQualityDegraded
	case cached:
		quality = middleware.DataQualityCached
	}
	w.Header().Set(middleware.DataQualityHeader, quality)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
