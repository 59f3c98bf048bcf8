// Package score combines exchange rate, trend and fare into a single score
// and ranks destinations by it.
package score

import (
	"sort"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
)

// Ranking limits.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Weights are the score coefficients. The defaults are empirical and pinned
// by tests; change them through configuration only.
type Weights struct {
	Rate          float64
	Trend         float64
	Fare          float64
	FareNumerator float64
	FareOffset    float64
}

// DefaultWeights returns rate 0.4, trend 0.4, fare 0.2 with fare factor 1000/(fare+100).
func DefaultWeights() Weights {
	return Weights{Rate: 0.4, Trend: 0.4, Fare: 0.2, FareNumerator: 1000, FareOffset: 100}
}

// WeightsFromConfig reads weights from configuration, keeping defaults for
// the fare constants when they are unset.
func WeightsFromConfig(cfg config.ScoringConfig) Weights {
	w := Weights{
		Rate:          cfg.RateWeight,
		Trend:         cfg.TrendWeight,
		Fare:          cfg.FareWeight,
		FareNumerator: cfg.FareNumerator,
		FareOffset:    cfg.FareOffset,
	}
	defaults := DefaultWeights()
	if w.Rate == 0 && w.Trend == 0 && w.Fare == 0 {
		w.Rate, w.Trend, w.Fare = defaults.Rate, defaults.Trend, defaults.Fare
	}
	if w.FareNumerator <= 0 {
		w.FareNumerator = defaults.FareNumerator
	}
	if w.FareOffset <= 0 {
		w.FareOffset = defaults.FareOffset
	}
	return w
}

// Scorer scores candidates with a fixed set of weights.
type Scorer struct {
	Weights Weights
}

// NewScorer returns a scorer using w.
func NewScorer(w Weights) Scorer {
	return Scorer{Weights: w}
}

// Score returns rateFactor*w.Rate + trendFactor*w.Trend + fareFactor*w.Fare.
func (s Scorer) Score(rate, trend, fare float64) float64 {
	w := s.weights()
	return RateFactor(rate)*w.Rate + TrendFactor(trend)*w.Trend + w.fareFactor(fare)*w.Fare
}

// RateFactor rewards deviation from parity in either direction: rate when
// above 1, otherwise 1/rate. Non-positive rates score 0.
func RateFactor(rate float64) float64 {
	switch {
	case rate <= 0:
		return 0
	case rate > 1:
		return rate
	default:
		return 1 / rate
	}
}

// TrendFactor maps a trend in [-1, 1] onto [0, 1].
func TrendFactor(trend float64) float64 {
	switch {
	case trend > 1:
		trend = 1
	case trend < -1:
		trend = -1
	}
	return (trend + 1) / 2
}

// FareFactor is 1000/(fare+100) with the default constants.
func FareFactor(fare float64) float64 {
	return DefaultWeights().fareFactor(fare)
}

func (w Weights) fareFactor(fare float64) float64 {
	if fare < 0 {
		fare = 0
	}
	return w.FareNumerator / (fare + w.FareOffset)
}

func (s Scorer) weights() Weights {
	if s.Weights == (Weights{}) {
		return DefaultWeights()
	}
	w := s.Weights
	if w.FareOffset <= 0 {
		w.FareOffset = DefaultWeights().FareOffset
	}
	if w.FareNumerator <= 0 {
		w.FareNumerator = DefaultWeights().FareNumerator
	}
	return w
}

// ClampLimit applies the default and maximum list sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Rank returns candidates ordered by descending score, ties broken by
// destination code ascending, truncated to limit. The input is not modified.
func Rank(candidates []core.Recommendation, limit int) []core.Recommendation {
	ranked := make([]core.Recommendation, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].DestinationAirport < ranked[j].DestinationAirport
	})

	limit = ClampLimit(limit)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
