package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/core"
)

func TestReferenceRate(t *testing.T) {
	rate, ok := ReferenceRate("usd", "EUR")
	require.True(t, ok)
	assert.InDelta(t, 0.92, rate, 1e-9)

	rate, ok = ReferenceRate("EUR", "GBP")
	require.True(t, ok)
	assert.InDelta(t, 0.78/0.92, rate, 1e-9)

	_, ok = ReferenceRate("USD", "XXX")
	assert.False(t, ok)
}

func TestSimulatedRatesAreDeterministic(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 29)

	first := SimulatedRates{}.History("USD", core.MajorCurrencies, start, end)
	second := SimulatedRates{}.History("usd", core.MajorCurrencies, start, end)

	require.Equal(t, first, second)
	assert.Equal(t, core.SourceSimulated, first.Source)
	assert.NotContains(t, first.Series, "USD")
	assert.Len(t, first.Series, len(core.MajorCurrencies)-1)

	eur := first.Series["EUR"]
	require.Len(t, eur, 30)
	assert.True(t, eur[0].Date.Equal(start))
	for _, point := range eur {
		assert.InDelta(t, 0.92, point.Rate, 0.92*0.03)
	}
}

func TestSimulatedRatesSwapsReversedWindow(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	history := SimulatedRates{}.History("GBP", []string{"EUR"}, start, start.AddDate(0, 0, -2))
	require.Len(t, history.Series["EUR"], 3)
}

func TestSimulatedFares(t *testing.T) {
	outbound := time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)
	ret := outbound.AddDate(0, 0, 7)

	roundTrip := SimulatedFares{}.Quote("JFK", "LHR", outbound, &ret, "usd", 500, 1)
	again := SimulatedFares{}.Quote("jfk", "lhr", outbound, &ret, "USD", 500, 1)
	require.Equal(t, roundTrip, again)

	assert.Equal(t, "USD", roundTrip.Currency)
	assert.Equal(t, core.SourceSimulated, roundTrip.Source)
	assert.GreaterOrEqual(t, roundTrip.Price, 500*0.85)
	assert.LessOrEqual(t, roundTrip.Price, 500*1.15)
	assert.NotEmpty(t, roundTrip.Airlines)
	require.NotNil(t, roundTrip.CarbonEmissionsKg)

	oneWay := SimulatedFares{}.Quote("JFK", "LHR", outbound, nil, "USD", 500, 1)
	assert.InDelta(t, roundTrip.Price*0.6, oneWay.Price, 0.02)

	converted := SimulatedFares{}.Quote("JFK", "LHR", outbound, &ret, "EUR", 500, 0.92)
	assert.InDelta(t, roundTrip.Price*0.92, converted.Price, 0.02)
	assert.Equal(t, "EUR", converted.Currency)
}
