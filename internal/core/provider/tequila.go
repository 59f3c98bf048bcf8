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

const tequilaURL = "https://api.tequila.kiwi.com"

// tequilaDate is the dd/mm/yyyy layout the search API expects.
const tequilaDate = "02/01/2006"

// TequilaFlights queries a Tequila style /v2/search API sorted by price.
type TequilaFlights struct {
	Client
}

// Fetch implements engine.Provider.
func (p *TequilaFlights) Fetch(ctx context.Context, req core.FetchRequest) engine.Outcome {
	if req.Kind != core.ProviderKindFlights {
		return engine.Malformed(fmt.Errorf("%s does not serve %s requests", p.Name(), req.Kind))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := p.baseURL(tequilaURL)
	if err != nil {
		return engine.Malformed(err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	outbound := req.OutboundDate.UTC().Format(tequilaDate)

	query := url.Values{}
	query.Set("fly_from", strings.ToUpper(strings.TrimSpace(req.Origin)))
	query.Set("fly_to", strings.ToUpper(strings.TrimSpace(req.Destination)))
	query.Set("date_from", outbound)
	query.Set("date_to", outbound)
	if req.ReturnDate != nil {
		ret := req.ReturnDate.UTC().Format(tequilaDate)
		query.Set("return_from", ret)
		query.Set("return_to", ret)
	}
	query.Set("curr", currency)
	query.Set("sort", "price")
	query.Set("limit", "5")

	endpoint := base.ResolveReference(&url.URL{Path: "/v2/search"})
	endpoint.RawQuery = query.Encode()

	headers := map[string]string{}
	if p.APIKey != "" {
		headers["apikey"] = p.APIKey
	}

	resp, failed := p.get(ctx, endpoint, headers)
	if failed != nil {
		return *failed
	}

	if outcome, done := p.classify(resp, firstString(resp.body, "error", "message")); done {
		return outcome
	}

	var cheapest gjson.Result
	gjson.GetBytes(resp.body, "data").ForEach(func(_, option gjson.Result) bool {
		price := option.Get("price").Float()
		if price <= 0 {
			return true
		}
		if !cheapest.Exists() || price < cheapest.Get("price").Float() {
			cheapest = option
		}
		return true
	})
	if !cheapest.Exists() {
		return engine.Malformed(errors.New("no priced itineraries in response")).WithStatus(resp.status)
	}

	var airlines []string
	seen := map[string]struct{}{}
	cheapest.Get("airlines").ForEach(func(_, code gjson.Result) bool {
		name := strings.TrimSpace(code.String())
		if _, ok := seen[name]; name != "" && !ok {
			seen[name] = struct{}{}
			airlines = append(airlines, name)
		}
		return true
	})

	if value := gjson.GetBytes(resp.body, "currency").String(); value != "" {
		currency = strings.ToUpper(value)
	}

	durationSeconds := cheapest.Get("duration.total").Int()
	fare := &core.FareQuote{
		Price:           cheapest.Get("price").Float(),
		Currency:        currency,
		Airlines:        airlines,
		DurationMinutes: int(durationSeconds / 60),
		Source:          core.SourceLive,
		Provider:        p.Name(),
	}
	return engine.FareOutcome(fare).WithStatus(resp.status)
}
