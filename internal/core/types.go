package core

import (
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used in cache keys, provider queries and payloads.
const DateLayout = "2006-01-02"

// ProviderKind identifies which family of data a provider supplies.
type ProviderKind string

const (
	ProviderKindForex   ProviderKind = "forex"
	ProviderKindFlights ProviderKind = "flights"
)

// DataSource records where a value came from.
type DataSource string

const (
	SourceLive      DataSource = "live"
	SourceCache     DataSource = "cache"
	SourceSimulated DataSource = "simulated"
	SourceSurrogate DataSource = "surrogate"
)

// MajorCurrencies is the fixed set of currencies the engine recommends against.
var MajorCurrencies = []string{
	"AED", "AUD", "BRL", "CAD", "CHF", "CNY", "CZK", "DKK", "EUR", "GBP",
	"HKD", "HUF", "IDR", "INR", "ISK", "JPY", "KRW", "MXN", "MYR", "NOK",
	"NZD", "PHP", "PLN", "SEK", "SGD", "THB", "TRY", "USD", "VND", "ZAR",
}

var majorCurrencySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(MajorCurrencies))
	for _, code := range MajorCurrencies {
		set[code] = struct{}{}
	}
	return set
}()

// IsMajorCurrency reports whether code (any casing) is in the supported set.
func IsMajorCurrency(code string) bool {
	_, ok := majorCurrencySet[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ProviderQuotaState captures per-provider quota exhaustion.
type ProviderQuotaState struct {
	Provider    string        `json:"provider"`
	Exceeded    bool          `json:"exceeded"`
	LastErrorAt *time.Time    `json:"last_error_at,omitempty"`
	Cooldown    time.Duration `json:"cooldown"`
}

// AvailableAt reports whether the provider may be selected at now.
// An exceeded provider heals once the cooldown has elapsed since the last quota error.
func (s ProviderQuotaState) AvailableAt(now time.Time) bool {
	if !s.Exceeded {
		return true
	}
	if s.LastErrorAt == nil {
		return false
	}
	return now.Sub(*s.LastErrorAt) > s.Cooldown
}

// RatePoint is a single daily exchange rate observation.
type RatePoint struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// RateSeries is an ordered sequence of rate points for one currency pair.
type RateSeries []RatePoint

// Normalize returns a copy sorted ascending by day with duplicate days removed.
// When a day appears more than once the later element in s wins.
func (s RateSeries) Normalize() RateSeries {
	if len(s) == 0 {
		return nil
	}

	latest := make(map[time.Time]int, len(s))
	for i, point := range s {
		latest[Day(point.Date)] = i
	}

	out := make(RateSeries, 0, len(latest))
	for day, idx := range latest {
		out = append(out, RatePoint{Date: day, Rate: s[idx].Rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Values returns the rates in series order.
func (s RateSeries) Values() []float64 {
	values := make([]float64, len(s))
	for i, point := range s {
		values[i] = point.Rate
	}
	return values
}

// Latest returns the most recent rate of a normalized series.
func (s RateSeries) Latest() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1].Rate, true
}

// Invert returns the series of reciprocal rates, skipping non-positive points.
func (s RateSeries) Invert() RateSeries {
	out := make(RateSeries, 0, len(s))
	for _, point := range s {
		if point.Rate <= 0 {
			continue
		}
		out = append(out, RatePoint{Date: point.Date, Rate: 1 / point.Rate})
	}
	return out
}

// RateHistory holds daily series for one base currency against several quotes.
type RateHistory struct {
	Base     string                `json:"base"`
	Series   map[string]RateSeries `json:"series"`
	Source   DataSource            `json:"source"`
	Provider string                `json:"provider,omitempty"`
}

// CacheEntry is a cached payload with its storage time and TTL.
type CacheEntry struct {
	Key      string        `json:"key"`
	Payload  []byte        `json:"payload"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the entry stops being valid.
func (e CacheEntry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// ValidAt reports whether now - StoredAt < TTL.
func (e CacheEntry) ValidAt(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// FareQuote is a round-trip or one-way fare for a route.
type FareQuote struct {
	Price             float64    `json:"price"`
	Currency          string     `json:"currency"`
	Airlines          []string   `json:"airlines,omitempty"`
	DurationMinutes   int        `json:"duration_minutes"`
	CarbonEmissionsKg *float64   `json:"carbon_emissions_kg,omitempty"`
	Source            DataSource `json:"source"`
	Provider          string     `json:"provider,omitempty"`
}

// Airport is reference data for a destination.
type Airport struct {
	Code     string `json:"code" yaml:"code"`
	Country  string `json:"country" yaml:"country"`
	City     string `json:"city" yaml:"city"`
	Currency string `json:"currency" yaml:"currency"`
}

// Route is a scheduled connection from an origin airport.
type Route struct {
	Origin      string  `json:"origin" yaml:"origin"`
	Destination string  `json:"destination" yaml:"destination"`
	Popularity  int     `json:"popularity" yaml:"popularity"`
	AverageFare float64 `json:"average_fare" yaml:"average_fare"`
}

// Recommendation is a scored destination.
type Recommendation struct {
	DestinationAirport string     `json:"destination_airport"`
	Country            string     `json:"country"`
	City               string     `json:"city"`
	Currency           string     `json:"currency"`
	ExchangeRate       float64    `json:"exchange_rate"`
	RatePath           string     `json:"rate_path"`
	Trend              float64    `json:"trend"`
	Fare               *FareQuote `json:"fare,omitempty"`
	FareSurrogate      bool       `json:"fare_surrogate"`
	Score              float64    `json:"score"`
}

// FetchRequest describes a single provider query. Forex requests use Base,
// Symbols, Start and End; flight requests use Origin, Destination, the dates
// and Currency.
type FetchRequest struct {
	Kind ProviderKind `json:"kind"`

	Base    string    `json:"base,omitempty"`
	Symbols []string  `json:"symbols,omitempty"`
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`

	Origin       string     `json:"origin,omitempty"`
	Destination  string     `json:"destination,omitempty"`
	OutboundDate time.Time  `json:"outbound_date,omitempty"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Currency     string     `json:"currency,omitempty"`
}
