package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
)

const serpAPIURL = "https://serpapi.com"

// SerpAPIFlights queries the Google Flights engine of a SerpApi style API and
// returns the cheapest itinerary.
type SerpAPIFlights struct {
	Client
}

// Fetch implements engine.Provider.
func (p *SerpAPIFlights) Fetch(ctx context.Context, req core.FetchRequest) engine.Outcome {
	if req.Kind != core.ProviderKindFlights {
		return engine.Malformed(fmt.Errorf("%s does not serve %s requests", p.Name(), req.Kind))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := p.baseURL(serpAPIURL)
	if err != nil {
		return engine.Malformed(err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	query := url.Values{}
	query.Set("engine", "google_flights")
	query.Set("departure_id", strings.ToUpper(strings.TrimSpace(req.Origin)))
	query.Set("arrival_id", strings.ToUpper(strings.TrimSpace(req.Destination)))
	query.Set("outbound_date", req.OutboundDate.UTC().Format(core.DateLayout))
	if req.ReturnDate != nil {
		query.Set("type", "1")
		query.Set("return_date", req.ReturnDate.UTC().Format(core.DateLayout))
	} else {
		query.Set("type", "2")
	}
	if currency != "" {
		query.Set("currency", currency)
	}
	if p.APIKey != "" {
		query.Set("api_key", p.APIKey)
	}

	endpoint := base.ResolveReference(&url.URL{Path: "/search.json"})
	endpoint.RawQuery = query.Encode()

	resp, failed := p.get(ctx, endpoint, nil)
	if failed != nil {
		return *failed
	}

	message := firstString(resp.body, "error")
	if strings.Contains(strings.ToLower(message), "run out of searches") {
		return engine.QuotaExceeded(vendorError(resp.status, message)).WithStatus(resp.status)
	}
	if outcome, done := p.classify(resp, message); done {
		return outcome
	}

	var best gjson.Result
	for _, group := range []string{"best_flights", "other_flights"} {
		gjson.GetBytes(resp.body, group).ForEach(func(_, option gjson.Result) bool {
			price := option.Get("price").Float()
			if price <= 0 {
				return true
			}
			if !best.Exists() || price < best.Get("price").Float() {
				best = option
			}
			return true
		})
	}
	if !best.Exists() {
		return engine.Malformed(errors.New("no priced itineraries in response")).WithStatus(resp.status)
	}

	var airlines []string
	seen := map[string]struct{}{}
	best.Get("flights").ForEach(func(_, leg gjson.Result) bool {
		name := strings.TrimSpace(leg.Get("airline").String())
		if name == "" {
			return true
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			airlines = append(airlines, name)
		}
		return true
	})

	fare := &core.FareQuote{
		Price:           best.Get("price").Float(),
		Currency:        currency,
		Airlines:        airlines,
		DurationMinutes: int(best.Get("total_duration").Int()),
		Source:          core.SourceLive,
		Provider:        p.Name(),
	}
	if grams := best.Get("carbon_emissions.this_flight"); grams.Exists() && grams.Float() >= 0 {
		kg := grams.Float() / 1000
		fare.CarbonEmissionsKg = &kg
	}
	if fare.Currency == "" {
		fare.Currency = "USD"
	}

	return engine.FareOutcome(fare).WithStatus(resp.status)
}
