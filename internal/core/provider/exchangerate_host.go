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

const exchangeRateHostURL = "https://api.exchangerate.host"

// exchangerate.host error codes that mean the plan allowance is spent.
var exchangeRateHostQuotaCodes = map[int64]bool{104: true, 106: true}

// ExchangeRateHost fetches daily time series from an exchangerate.host style API.
// A single call covers every requested quote currency.
type ExchangeRateHost struct {
	Client
}

// Fetch implements engine.Provider.
func (p *ExchangeRateHost) Fetch(ctx context.Context, req core.FetchRequest) engine.Outcome {
	if req.Kind != core.ProviderKindForex {
		return engine.Malformed(fmt.Errorf("%s does not serve %s requests", p.Name(), req.Kind))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := p.baseURL(exchangeRateHostURL)
	if err != nil {
		return engine.Malformed(err)
	}

	source := strings.ToUpper(strings.TrimSpace(req.Base))
	query := url.Values{}
	query.Set("source", source)
	query.Set("currencies", strings.Join(upperAll(req.Symbols), ","))
	query.Set("start_date", req.Start.UTC().Format(core.DateLayout))
	query.Set("end_date", req.End.UTC().Format(core.DateLayout))
	if p.APIKey != "" {
		query.Set("access_key", p.APIKey)
	}

	endpoint := base.ResolveReference(&url.URL{Path: "/timeseries"})
	endpoint.RawQuery = query.Encode()

	resp, failed := p.get(ctx, endpoint, nil)
	if failed != nil {
		return *failed
	}

	body := resp.body
	if gjson.GetBytes(body, "success").Exists() && !gjson.GetBytes(body, "success").Bool() {
		code := gjson.GetBytes(body, "error.code").Int()
		message := firstString(body, "error.info", "error.type", "error")
		if exchangeRateHostQuotaCodes[code] {
			return engine.QuotaExceeded(vendorError(resp.status, message)).WithStatus(resp.status)
		}
		if message == "" {
			message = fmt.Sprintf("error code %d", code)
		}
		if outcome, done := p.classify(resp, message); done {
			return outcome
		}
	}

	if outcome, done := p.classify(resp, firstString(body, "error.info", "error")); done {
		return outcome
	}

	history := &core.RateHistory{
		Base:     source,
		Series:   make(map[string]core.RateSeries),
		Source:   core.SourceLive,
		Provider: p.Name(),
	}

	quotes := gjson.GetBytes(body, "quotes")
	if !quotes.IsObject() {
		quotes = gjson.GetBytes(body, "rates")
	}
	if !quotes.IsObject() {
		return engine.Malformed(errors.New("response has no quotes")).WithStatus(resp.status)
	}

	quotes.ForEach(func(dateKey, daily gjson.Result) bool {
		date, err := time.Parse(core.DateLayout, dateKey.String())
		if err != nil {
			return true
		}
		daily.ForEach(func(pairKey, value gjson.Result) bool {
			quote := strings.ToUpper(pairKey.String())
			// quotes are keyed "USDEUR"; rates are keyed "EUR"
			if len(quote) == 6 && strings.HasPrefix(quote, source) {
				quote = quote[3:]
			}
			rate := value.Float()
			if rate <= 0 || quote == source {
				return true
			}
			history.Series[quote] = append(history.Series[quote], core.RatePoint{Date: date, Rate: rate})
			return true
		})
		return true
	})

	if len(history.Series) == 0 {
		return engine.Malformed(errors.New("response contained no usable rates")).WithStatus(resp.status)
	}
	for quote, series := range history.Series {
		history.Series[quote] = series.Normalize()
	}

	return engine.RatesOutcome(history).WithStatus(resp.status)
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.ToUpper(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
