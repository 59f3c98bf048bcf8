package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
)

const alphaVantageURL = "https://www.alphavantage.co"

// AlphaVantage fetches FX_DAILY series, one call per quote currency.
type AlphaVantage struct {
	Client
}

// Fetch implements engine.Provider.
func (p *AlphaVantage) Fetch(ctx context.Context, req core.FetchRequest) engine.Outcome {
	if req.Kind != core.ProviderKindForex {
		return engine.Malformed(fmt.Errorf("%s does not serve %s requests", p.Name(), req.Kind))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := p.baseURL(alphaVantageURL)
	if err != nil {
		return engine.Malformed(err)
	}

	from := strings.ToUpper(strings.TrimSpace(req.Base))
	start := core.Day(req.Start)
	end := core.Day(req.End)

	history := &core.RateHistory{
		Base:     from,
		Series:   make(map[string]core.RateSeries),
		Source:   core.SourceLive,
		Provider: p.Name(),
	}

	for _, to := range upperAll(req.Symbols) {
		if to == from {
			continue
		}
		series, outcome := p.fetchPair(ctx, base, from, to, start, end)
		if outcome != nil {
			return *outcome
		}
		if len(series) > 0 {
			history.Series[to] = series
		}
	}

	if len(history.Series) == 0 {
		return engine.Malformed(errors.New("response contained no usable rates"))
	}
	return engine.RatesOutcome(history)
}

func (p *AlphaVantage) fetchPair(ctx context.Context, base *url.URL, from, to string, start, end time.Time) (core.RateSeries, *engine.Outcome) {
	query := url.Values{}
	query.Set("function", "FX_DAILY")
	query.Set("from_symbol", from)
	query.Set("to_symbol", to)
	query.Set("outputsize", "compact")
	if p.APIKey != "" {
		query.Set("apikey", p.APIKey)
	}

	endpoint := base.ResolveReference(&url.URL{Path: "/query"})
	endpoint.RawQuery = query.Encode()

	resp, failed := p.get(ctx, endpoint, nil)
	if failed != nil {
		return nil, failed
	}

	// Throttling notices arrive with HTTP 200 under "Note" or "Information".
	if notice := firstString(resp.body, "Note", "Information"); notice != "" {
		out := engine.QuotaExceeded(vendorError(resp.status, notice)).WithStatus(resp.status)
		return nil, &out
	}
	if outcome, done := p.classify(resp, firstString(resp.body, "Error Message")); done {
		return nil, &outcome
	}

	var seriesNode gjson.Result
	gjson.ParseBytes(resp.body).ForEach(func(key, value gjson.Result) bool {
		if strings.HasPrefix(key.String(), "Time Series FX") {
			seriesNode = value
			return false
		}
		return true
	})
	if !seriesNode.IsObject() {
		out := engine.Malformed(fmt.Errorf("no daily series for %s%s", from, to)).WithStatus(resp.status)
		return nil, &out
	}

	var series core.RateSeries
	seriesNode.ForEach(func(dateKey, bar gjson.Result) bool {
		date, err := time.Parse(core.DateLayout, dateKey.String())
		if err != nil {
			return true
		}
		if (!start.IsZero() && date.Before(start)) || (!end.IsZero() && date.After(end)) {
			return true
		}
		rate := bar.Get(`4\. close`).Float()
		if rate > 0 {
			series = append(series, core.RatePoint{Date: date, Rate: rate})
		}
		return true
	})

	return series.Normalize(), nil
}
