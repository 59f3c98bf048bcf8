// Package recommend runs the per-request recommendation pipeline: rate
// lookup, route lookup, fare fan-out, then scoring and ranking.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/cache"
	"github.com/tripfx/tripfx/internal/core/engine"
	"github.com/tripfx/tripfx/internal/core/provider"
	"github.com/tripfx/tripfx/internal/core/score"
	"github.com/tripfx/tripfx/internal/core/trend"
)

// Defaults used when the controller is built without configuration.
const (
	DefaultFanoutLimit   = 20
	DefaultConcurrency   = 20
	DefaultLeadDays      = 30
	DefaultSurrogateFare = 450.0
)

// Response statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// RouteSource supplies route and airport reference data.
type RouteSource interface {
	RoutesForAirport(ctx context.Context, code string) ([]core.Route, error)
	AirportCountryMap(ctx context.Context) (map[string]core.Airport, error)
}

// Fetcher is the provider orchestrator contract. *engine.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req core.FetchRequest) (*engine.Result, error)
}

// Policies holds the cache TTLs per data type.
type Policies struct {
	Rates           cache.Policy
	Fares           cache.Policy
	Routes          cache.Policy
	Recommendations cache.Policy
}

// PoliciesFromConfig converts the configured TTL pairs.
func PoliciesFromConfig(cfg config.CacheConfig) Policies {
	return Policies{
		Rates:           cache.PolicyFromConfig(cfg.Rates),
		Fares:           cache.PolicyFromConfig(cfg.Fares),
		Routes:          cache.PolicyFromConfig(cfg.Routes),
		Recommendations: cache.PolicyFromConfig(cfg.Recommendations),
	}
}

// Response is the result of one recommendation request.
type Response struct {
	ID               string                `json:"id"`
	Status           string                `json:"status"`
	Count            int                   `json:"count"`
	BaseCurrency     string                `json:"base_currency"`
	DepartureAirport string                `json:"departure_airport"`
	OutboundDate     string                `json:"outbound_date"`
	ReturnDate       string                `json:"return_date,omitempty"`
	Recommendations  []core.Recommendation `json:"recommendations"`
	Degraded         bool                  `json:"degraded"`
	Warnings         []string              `json:"warnings,omitempty"`
	Cached           bool                  `json:"cached"`
	GeneratedAt      time.Time             `json:"generated_at"`
	Trace            []Transition          `json:"trace,omitempty"`
}

// Controller coordinates the cache, providers, trend analyzer and scorer.
type Controller struct {
	Cache    *cache.Cache
	Forex    Fetcher
	Flights  Fetcher
	Routes   RouteSource
	Analyzer trend.Analyzer
	Scorer   score.Scorer
	Policies Policies

	FanoutLimit   int
	Concurrency   int
	DefaultLimit  int
	MaxLimit      int
	LeadDays      int
	SurrogateFare float64
	SimulateRates bool
	SimulateFares bool

	Logger engine.Logger
	// Observe is called once per request with its status or error code.
	Observe func(status string, elapsed time.Duration)
	Clock   func() time.Time
}

// New builds a controller from configuration.
func New(cfg *config.Config, c *cache.Cache, forex, flights Fetcher, routes RouteSource) *Controller {
	if c == nil {
		c = cache.New(nil, nil)
	}
	ctrl := &Controller{
		Cache:   c,
		Forex:   forex,
		Flights: flights,
		Routes:  routes,
	}
	if cfg == nil {
		return ctrl
	}
	ctrl.Analyzer = trend.Analyzer{Window: cfg.Trend.Window, Method: cfg.Trend.Method, EndpointScale: cfg.Trend.EndpointScale}
	ctrl.Scorer = score.NewScorer(score.WeightsFromConfig(cfg.Scoring))
	ctrl.Policies = PoliciesFromConfig(cfg.Cache)
	ctrl.FanoutLimit = cfg.Recommend.FanoutLimit
	ctrl.Concurrency = cfg.Recommend.Concurrency
	ctrl.DefaultLimit = cfg.Recommend.DefaultLimit
	ctrl.MaxLimit = cfg.Recommend.MaxLimit
	ctrl.LeadDays = cfg.Recommend.DefaultLeadDays
	ctrl.SurrogateFare = cfg.Recommend.SurrogateFare
	ctrl.SimulateRates = cfg.Fallback.SimulateRates
	ctrl.SimulateFares = cfg.Fallback.SimulateFares
	return ctrl
}

// candidate is one destination moving through the fan-out.
type candidate struct {
	route    core.Route
	airport  core.Airport
	fare     *core.FareQuote
	degraded bool
}

// Generate produces ranked recommendations for req. Degraded data is flagged
// in the response; only missing routes or rates, invalid input, or exhausted
// providers with simulation disabled fail the request.
func (c *Controller) Generate(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, &Error{Code: CodeInternal, State: StateInit, Message: "controller is not configured"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	started := c.now()
	r := &run{ctrl: c, logger: engine.LoggerOrNop(c.Logger), started: started}
	resp, err := r.execute(ctx, req)

	status := StatusOK
	switch {
	case err != nil:
		status = string(CodeOf(err))
	case resp.Degraded:
		status = StatusDegraded
	}
	if c.Observe != nil {
		c.Observe(status, c.now().Sub(started))
	}
	return resp, err
}

type run struct {
	ctrl    *Controller
	logger  engine.Logger
	started time.Time

	mu       sync.Mutex
	trace    []Transition
	warnings []string
	degraded bool
}

func (r *run) execute(ctx context.Context, req Request) (*Response, error) {
	c := r.ctrl
	r.enter(StateInit, "")
	if c.Cache == nil {
		return nil, r.fail(CodeInternal, "cache is not configured", nil)
	}

	q, err := req.build(c.now(), c.leadDays(), c.window(), score.ClampLimit(c.DefaultLimit), c.maxLimit())
	if err != nil {
		return nil, r.fail(CodeValidationFailed, "invalid request", err)
	}

	recKey := cache.RecommendationKey(q.Base, q.Airport, q.Outbound, q.Return, q.Limit)
	if cached, ok := r.cachedResponse(ctx, recKey); ok {
		return cached, nil
	}

	r.enter(StateRateLookup, q.Base)
	history, err := r.rates(ctx, q)
	if err != nil {
		return nil, err
	}
	book := score.NewBook(history)
	book.Loader = func(ctx context.Context, base string) (*core.RateHistory, error) {
		bridge := q
		bridge.Base = base
		h, _, err := c.loadRates(ctx, bridge)
		return h, err
	}

	r.enter(StateRouteLookup, q.Airport)
	candidates, err := r.candidates(ctx, q)
	if err != nil {
		return nil, err
	}

	r.enter(StateFareFanout, fmt.Sprintf("%d destinations", len(candidates)))
	usdToBase := 1.0
	if res, ok := score.ResolveRate(ctx, book, "USD", q.Base); ok {
		usdToBase = res.Rate
	}
	r.fanout(ctx, q, candidates, usdToBase)

	r.enter(StateScoreRank, "")
	recs := r.score(ctx, q, book, candidates, usdToBase)
	if len(recs) == 0 {
		return nil, r.fail(CodeNoRateData, fmt.Sprintf("no exchange rate could be resolved for any destination from %s", q.Airport), nil)
	}
	ranked := score.Rank(recs, q.Limit)

	r.enter(StateDone, fmt.Sprintf("%d recommendations", len(ranked)))
	resp := r.response(ctx, q, ranked)

	if !resp.Degraded {
		if payload, err := cache.Encode(resp); err == nil {
			if err := c.Cache.Put(ctx, recKey, payload, c.Policies.Recommendations); err != nil {
				r.logger.Warn("Failed to cache recommendations", zap.String("key", recKey), zap.Error(err))
			}
		}
	}
	return resp, nil
}

func (r *run) cachedResponse(ctx context.Context, key string) (*Response, bool) {
	entry, ok, err := r.ctrl.Cache.Lookup(ctx, key, r.ctrl.Policies.Recommendations)
	if err != nil || !ok {
		return nil, false
	}
	var resp Response
	if err := cache.Decode(entry.Payload, &resp); err != nil {
		_ = r.ctrl.Cache.Invalidate(ctx, key)
		return nil, false
	}
	resp.Cached = true
	resp.ID = responseID(ctx)
	r.enter(StateDone, "served from cache")
	resp.Trace = r.snapshotTrace()
	return &resp, true
}

// rates loads the base currency's history, degrading to simulated series when
// every forex provider is exhausted.
func (r *run) rates(ctx context.Context, q query) (*core.RateHistory, error) {
	c := r.ctrl
	history, hit, err := c.loadRates(ctx, q)
	if err == nil {
		if len(history.Series) == 0 {
			return nil, r.fail(CodeNoRateData, fmt.Sprintf("no exchange rates available for %s", q.Base), nil)
		}
		if hit {
			r.annotate("cache hit")
		}
		return history, nil
	}

	if !errors.Is(err, engine.ErrDataUnavailable) {
		return nil, r.fail(CodeInternal, "rate lookup failed", err)
	}
	if !c.SimulateRates {
		return nil, r.fail(CodeProvidersExhausted, "all forex providers are exhausted", err)
	}

	r.warn(CodeProvidersExhausted, "forex providers exhausted; using simulated exchange rates")
	r.logger.Warn("Falling back to simulated rates", zap.String("base", q.Base), zap.Error(err))
	return provider.SimulatedRates{}.History(q.Base, core.MajorCurrencies, q.RateStart, q.RateEnd), nil
}

func (c *Controller) loadRates(ctx context.Context, q query) (*core.RateHistory, bool, error) {
	key := cache.RateSeriesKey(q.Base, core.MajorCurrencies, q.RateStart, q.RateEnd)
	history, hit, err := cache.Load(ctx, c.Cache, key, c.Policies.Rates, func(ctx context.Context) (*core.RateHistory, error) {
		if c.Forex == nil {
			return nil, &engine.ProviderError{Kind: core.ProviderKindForex, AllExhausted: true}
		}
		result, err := c.Forex.Fetch(ctx, core.FetchRequest{
			Kind:    core.ProviderKindForex,
			Base:    q.Base,
			Symbols: core.MajorCurrencies,
			Start:   q.RateStart,
			End:     q.RateEnd,
		})
		if err != nil {
			return nil, err
		}
		return result.Outcome.Rates, nil
	})
	if err != nil {
		return nil, false, err
	}
	if history == nil {
		return nil, false, fmt.Errorf("rate lookup for %s returned no data", q.Base)
	}
	return history, hit, nil
}

var errNoRoutes = errors.New("no routes")

// candidates returns the most popular destinations that have airport data.
func (r *run) candidates(ctx context.Context, q query) ([]*candidate, error) {
	c := r.ctrl
	if c.Routes == nil {
		return nil, r.fail(CodeInternal, "route data is not configured", nil)
	}

	routes, _, err := cache.Load(ctx, c.Cache, cache.RoutesKey(q.Airport), c.Policies.Routes, func(ctx context.Context) ([]core.Route, error) {
		routes, err := c.Routes.RoutesForAirport(ctx, q.Airport)
		if err != nil {
			return nil, err
		}
		if len(routes) == 0 {
			return nil, errNoRoutes
		}
		return routes, nil
	})
	if errors.Is(err, errNoRoutes) || (err == nil && len(routes) == 0) {
		return nil, r.fail(CodeNoRoutes, fmt.Sprintf("no routes found from %s", q.Airport), nil)
	}
	if err != nil {
		return nil, r.fail(CodeInternal, "route lookup failed", err)
	}

	airports, err := c.Routes.AirportCountryMap(ctx)
	if err != nil {
		return nil, r.fail(CodeInternal, "airport lookup failed", err)
	}

	routes = topRoutes(routes, c.fanoutLimit())
	out := make([]*candidate, 0, len(routes))
	for _, route := range routes {
		airport, ok := airports[strings.ToUpper(route.Destination)]
		if !ok {
			r.logger.Debug("Skipping destination without airport data", zap.String("destination", route.Destination))
			continue
		}
		out = append(out, &candidate{route: route, airport: airport})
	}
	if len(out) == 0 {
		return nil, r.fail(CodeNoRoutes, fmt.Sprintf("no routes with known destinations from %s", q.Airport), nil)
	}
	return out, nil
}

// fanout looks up one fare per candidate. A failed lookup leaves the fare nil
// so the scorer uses a surrogate; it never cancels other lookups.
func (r *run) fanout(ctx context.Context, q query, candidates []*candidate, usdToBase float64) {
	c := r.ctrl
	var g errgroup.Group
	g.SetLimit(c.concurrency())

	exhausted := 0
	var mu sync.Mutex

	for _, cand := range candidates {
		g.Go(func() error {
			fare, degraded, err := c.fare(ctx, q, cand.route, usdToBase)
			if err != nil {
				r.logger.Debug("Fare lookup failed; using surrogate",
					zap.String("destination", cand.route.Destination), zap.Error(err))
			}
			cand.fare = fare
			cand.degraded = degraded
			if degraded {
				mu.Lock()
				exhausted++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if exhausted > 0 {
		r.warn(CodeProvidersExhausted, fmt.Sprintf("flight providers exhausted; using simulated fares for %d destinations", exhausted))
	}
}

func (c *Controller) fare(ctx context.Context, q query, route core.Route, usdToBase float64) (*core.FareQuote, bool, error) {
	key := cache.FareKey(q.Airport, route.Destination, q.Outbound, q.Return, q.Base)
	fare, hit, err := cache.Load(ctx, c.Cache, key, c.Policies.Fares, func(ctx context.Context) (*core.FareQuote, error) {
		if c.Flights == nil {
			return nil, &engine.ProviderError{Kind: core.ProviderKindFlights, AllExhausted: true}
		}
		result, err := c.Flights.Fetch(ctx, core.FetchRequest{
			Kind:         core.ProviderKindFlights,
			Origin:       q.Airport,
			Destination:  route.Destination,
			OutboundDate: q.Outbound,
			ReturnDate:   q.Return,
			Currency:     q.Base,
		})
		if err != nil {
			return nil, err
		}
		return result.Outcome.Fare, nil
	})

	switch {
	case err == nil && fare != nil:
		if hit {
			fare.Source = core.SourceCache
		}
		return fare, false, nil
	case errors.Is(err, engine.ErrDataUnavailable) && c.SimulateFares:
		simulated := provider.SimulatedFares{}.Quote(q.Airport, route.Destination, q.Outbound, q.Return, q.Base, route.AverageFare, usdToBase)
		return simulated, true, nil
	default:
		return nil, false, err
	}
}

func (r *run) score(ctx context.Context, q query, book *score.Book, candidates []*candidate, usdToBase float64) []core.Recommendation {
	c := r.ctrl
	recs := make([]core.Recommendation, 0, len(candidates))

	for _, cand := range candidates {
		res, ok := score.ResolveRate(ctx, book, q.Base, cand.airport.Currency)
		if !ok {
			r.logger.Debug("Excluding destination without a usable rate",
				zap.String("destination", cand.route.Destination),
				zap.String("currency", cand.airport.Currency))
			continue
		}

		fare, surrogate := c.fareInBase(ctx, q, book, cand, usdToBase)
		trendValue := c.Analyzer.Compute(res.Series)

		recs = append(recs, core.Recommendation{
			DestinationAirport: cand.route.Destination,
			Country:            cand.airport.Country,
			City:               cand.airport.City,
			Currency:           cand.airport.Currency,
			ExchangeRate:       res.Rate,
			RatePath:           res.Path,
			Trend:              trendValue,
			Fare:               fare,
			FareSurrogate:      surrogate,
			Score:              c.Scorer.Score(res.Rate, trendValue, fare.Price),
		})
	}
	return recs
}

// fareInBase returns the candidate's fare priced in the base currency, or a
// surrogate built from the route average (or the global default) when there is none.
func (c *Controller) fareInBase(ctx context.Context, q query, book *score.Book, cand *candidate, usdToBase float64) (*core.FareQuote, bool) {
	if fare := cand.fare; fare != nil {
		currency := strings.ToUpper(fare.Currency)
		if currency == "" || currency == q.Base {
			return fare, false
		}
		if res, ok := score.ResolveRate(ctx, book, q.Base, currency); ok && res.Rate > 0 {
			converted := *fare
			converted.Price = round2(fare.Price / res.Rate)
			converted.Currency = q.Base
			return &converted, false
		}
	}

	averageUSD := cand.route.AverageFare
	if averageUSD <= 0 {
		averageUSD = c.surrogateFare()
	}
	return &core.FareQuote{
		Price:    round2(averageUSD * usdToBase),
		Currency: q.Base,
		Source:   core.SourceSurrogate,
	}, true
}

// responseID reuses the caller's request ID so logs and responses correlate.
func responseID(ctx context.Context) string {
	if id := core.RequestIDFrom(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (r *run) response(ctx context.Context, q query, recs []core.Recommendation) *Response {
	r.mu.Lock()
	degraded := r.degraded
	warnings := append([]string(nil), r.warnings...)
	r.mu.Unlock()

	for _, cand := range recs {
		if cand.Fare != nil && cand.Fare.Source == core.SourceSimulated {
			degraded = true
		}
	}

	resp := &Response{
		ID:               responseID(ctx),
		Status:           StatusOK,
		Count:            len(recs),
		BaseCurrency:     q.Base,
		DepartureAirport: q.Airport,
		OutboundDate:     cache.Date(q.Outbound),
		Recommendations:  recs,
		Degraded:         degraded,
		Warnings:         warnings,
		GeneratedAt:      r.ctrl.now(),
		Trace:            r.snapshotTrace(),
	}
	if q.Return != nil {
		resp.ReturnDate = cache.Date(*q.Return)
	}
	if degraded {
		resp.Status = StatusDegraded
	}
	return resp
}

func (r *run) warn(code Code, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = true
	r.warnings = append(r.warnings, fmt.Sprintf("%s: %s", code, message))
}

func (r *run) fail(code Code, message string, err error) error {
	state := r.current()
	r.enter(StateFailed, string(code))
	r.logger.Warn("Recommendation request failed",
		zap.String("code", string(code)),
		zap.String("state", string(state)),
		zap.String("message", message),
		zap.Error(err))
	return &Error{Code: code, State: state, Message: message, Err: err}
}

func topRoutes(routes []core.Route, limit int) []core.Route {
	sorted := make([]core.Route, len(routes))
	copy(sorted, routes)
	sortRoutesByPopularity(sorted)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func (c *Controller) fanoutLimit() int {
	if c.FanoutLimit > 0 {
		return c.FanoutLimit
	}
	return DefaultFanoutLimit
}

func (c *Controller) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultConcurrency
}

func (c *Controller) leadDays() int {
	if c.LeadDays > 0 {
		return c.LeadDays
	}
	return DefaultLeadDays
}

func (c *Controller) window() int {
	if c.Analyzer.Window > 0 {
		return c.Analyzer.Window
	}
	return trend.DefaultWindow
}

func (c *Controller) maxLimit() int {
	if c.MaxLimit > 0 && c.MaxLimit <= score.MaxLimit {
		return c.MaxLimit
	}
	return score.MaxLimit
}

func (c *Controller) surrogateFare() float64 {
	if c.SurrogateFare > 0 {
		return c.SurrogateFare
	}
	return DefaultSurrogateFare
}

func (c *Controller) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
