package score

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
)

func TestScoreFormula(t *testing.T) {
	s := NewScorer(DefaultWeights())

	lhr := s.Score(0.78, 0, 500)
	cdg := s.Score(0.92, 0, 600)

	assert.InDelta(t, (1/0.78)*0.4+0.5*0.4+(1000.0/600)*0.2, lhr, 1e-12)
	assert.InDelta(t, 1.0462, lhr, 1e-4)
	assert.InDelta(t, 0.9205, cdg, 1e-4)
	assert.Greater(t, lhr, cdg)
}

func TestScoreZeroValueScorerUsesDefaults(t *testing.T) {
	assert.Equal(t, NewScorer(DefaultWeights()).Score(1.3, 0.2, 350), Scorer{}.Score(1.3, 0.2, 350))
}

func TestScoreMonotoneInFare(t *testing.T) {
	s := Scorer{}
	prev := s.Score(1.1, 0.1, 0)
	for fare := 50.0; fare <= 5000; fare += 50 {
		cur := s.Score(1.1, 0.1, fare)
		require.Less(t, cur, prev, "fare %.0f", fare)
		prev = cur
	}
}

func TestFactors(t *testing.T) {
	assert.Equal(t, 1.5, RateFactor(1.5))
	assert.InDelta(t, 2.0, RateFactor(0.5), 1e-12)
	assert.Equal(t, 1.0, RateFactor(1))
	assert.Equal(t, 0.0, RateFactor(0))

	assert.Equal(t, 0.0, TrendFactor(-1))
	assert.Equal(t, 0.5, TrendFactor(0))
	assert.Equal(t, 1.0, TrendFactor(3))

	assert.Equal(t, 10.0, FareFactor(0))
	assert.Equal(t, 10.0, FareFactor(-20))
	assert.InDelta(t, 2.0, FareFactor(400), 1e-12)
}

func TestWeightsFromConfig(t *testing.T) {
	w := WeightsFromConfig(config.ScoringConfig{RateWeight: 0.5, TrendWeight: 0.3, FareWeight: 0.2})
	assert.Equal(t, Weights{Rate: 0.5, Trend: 0.3, Fare: 0.2, FareNumerator: 1000, FareOffset: 100}, w)
	assert.Equal(t, DefaultWeights(), WeightsFromConfig(config.ScoringConfig{}))
}

func TestRankOrdersAndBreaksTies(t *testing.T) {
	candidates := []core.Recommendation{
		{DestinationAirport: "NRT", Score: 0.8},
		{DestinationAirport: "LHR", Score: 1.05},
		{DestinationAirport: "CDG", Score: 0.92},
		{DestinationAirport: "AMS", Score: 0.92},
	}

	ranked := Rank(candidates, 10)
	codes := make([]string, len(ranked))
	for i, r := range ranked {
		codes[i] = r.DestinationAirport
	}
	assert.Equal(t, []string{"LHR", "AMS", "CDG", "NRT"}, codes)
	assert.Equal(t, "NRT", candidates[0].DestinationAirport, "input must not be reordered")

	again := Rank([]core.Recommendation{candidates[3], candidates[2], candidates[1], candidates[0]}, 10)
	assert.Equal(t, ranked, again)
}

func TestRankLimit(t *testing.T) {
	candidates := make([]core.Recommendation, 60)
	for i := range candidates {
		candidates[i] = core.Recommendation{DestinationAirport: string(rune('A'+i%26)) + string(rune('A'+i/26)) + "X", Score: float64(i)}
	}

	assert.Len(t, Rank(candidates, 0), DefaultLimit)
	assert.Len(t, Rank(candidates, 3), 3)
	assert.Len(t, Rank(candidates, 500), MaxLimit)
	assert.Equal(t, 59.0, Rank(candidates, 1)[0].Score)
}

func series(rates ...float64) core.RateSeries {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make(core.RateSeries, len(rates))
	for i, r := range rates {
		out[i] = core.RatePoint{Date: start.AddDate(0, 0, i), Rate: r}
	}
	return out
}

func TestResolveRateDirect(t *testing.T) {
	book := NewBook(&core.RateHistory{Base: "USD", Series: map[string]core.RateSeries{"GBP": series(0.77, 0.78)}})

	res, ok := ResolveRate(context.Background(), book, "usd", "gbp")
	require.True(t, ok)
	assert.Equal(t, PathDirect, res.Path)
	assert.Equal(t, 0.78, res.Rate)
	assert.Len(t, res.Series, 2)
}

func TestResolveRateInverse(t *testing.T) {
	book := NewBook(&core.RateHistory{Base: "EUR", Series: map[string]core.RateSeries{"USD": series(1.25, 1.0 / 0.8)}})

	res, ok := ResolveRate(context.Background(), book, "USD", "EUR")
	require.True(t, ok)
	assert.Equal(t, PathInverse, res.Path)
	assert.InDelta(t, 0.8, res.Rate, 1e-12)
}

func TestResolveRateBridge(t *testing.T) {
	book := NewBook(&core.RateHistory{Base: "GBP", Series: map[string]core.RateSeries{"USD": series(1.25, 1.28)}})

	loads := 0
	book.Loader = func(ctx context.Context, base string) (*core.RateHistory, error) {
		loads++
		require.Equal(t, "USD", base)
		return &core.RateHistory{Series: map[string]core.RateSeries{"JPY": series(150, 151)}}, nil
	}

	res, ok := ResolveRate(context.Background(), book, "GBP", "JPY")
	require.True(t, ok)
	assert.Equal(t, PathUSDBridge, res.Path)
	assert.InDelta(t, 1.28*151, res.Rate, 1e-9)
	require.Len(t, res.Series, 2)
	assert.InDelta(t, 1.25*150, res.Series[0].Rate, 1e-9)

	_, ok = ResolveRate(context.Background(), book, "GBP", "THB")
	assert.False(t, ok)
	assert.Equal(t, 1, loads)
}

func TestResolveRateExcludesUnknown(t *testing.T) {
	book := NewBook()
	book.Loader = func(ctx context.Context, base string) (*core.RateHistory, error) {
		return nil, errors.New("exhausted")
	}

	_, ok := ResolveRate(context.Background(), book, "GBP", "JPY")
	assert.False(t, ok)
	_, ok = ResolveRate(context.Background(), nil, "USD", "EUR")
	assert.False(t, ok)

	res, ok := ResolveRate(context.Background(), nil, "EUR", "eur")
	require.True(t, ok)
	assert.Equal(t, PathIdentity, res.Path)
	assert.Equal(t, 1.0, res.Rate)
}
