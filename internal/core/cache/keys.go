package cache

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tripfx/tripfx/internal/core"
)

// Delimiter separates key fields.
const Delimiter = "|"

// Key namespaces, one per cached data type.
const (
	NamespaceRates           = "rates"
	NamespaceFares           = "fares"
	NamespaceRoutes          = "routes"
	NamespaceRecommendations = "recs"
)

// DeriveKey joins a namespace and normalized fields into a cache key.
// Fields are uppercased with all whitespace removed, so requests that differ
// only in casing or incidental spacing share one key.
func DeriveKey(namespace string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, strings.ToLower(squash(namespace)))
	for _, field := range fields {
		parts = append(parts, Code(field))
	}
	return strings.Join(parts, Delimiter)
}

// Code normalizes an airport or currency code for use in a key.
func Code(value string) string {
	return strings.ToUpper(squash(value))
}

// Date formats t as YYYY-MM-DD in UTC, or "" for the zero time.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(core.DateLayout)
}

// RateSeriesKey keys a base currency's series against a symbol set over a day window.
// Symbol order and duplicates do not affect the key.
func RateSeriesKey(base string, symbols []string, start, end time.Time) string {
	set := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		if code := Code(symbol); code != "" {
			set[code] = struct{}{}
		}
	}
	normalized := make([]string, 0, len(set))
	for code := range set {
		normalized = append(normalized, code)
	}
	sort.Strings(normalized)

	return DeriveKey(NamespaceRates, base, strings.Join(normalized, ","), Date(start), Date(end))
}

// FareKey keys a fare lookup for one route, date pair and currency.
func FareKey(origin, destination string, outbound time.Time, returnDate *time.Time, currency string) string {
	return DeriveKey(NamespaceFares, origin, destination, Date(outbound), optionalDate(returnDate), currency)
}

// RoutesKey keys the route list for a departure airport.
func RoutesKey(airport string) string {
	return DeriveKey(NamespaceRoutes, airport)
}

// RecommendationKey keys an aggregated recommendation result.
func RecommendationKey(base, airport string, outbound time.Time, returnDate *time.Time, limit int) string {
	return DeriveKey(NamespaceRecommendations, base, airport, Date(outbound), optionalDate(returnDate), strconv.Itoa(limit))
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return Date(*t)
}

// squash removes whitespace and the delimiter from value.
func squash(value string) string {
	value = strings.Join(strings.Fields(value), "")
	return strings.ReplaceAll(value, Delimiter, "")
}
