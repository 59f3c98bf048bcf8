// Package trend turns an exchange rate series into a directional score in [-1, 1].
package trend

import (
	"math"
	"strings"

	"github.com/tripfx/tripfx/internal/core"
)

// Methods supported by Analyzer.
const (
	MethodRegression = "regression"
	MethodEndpoint   = "endpoint"
)

// Defaults.
const (
	DefaultWindow        = 30
	DefaultEndpointScale = 10.0
)

const meanEpsilon = 1e-12

// Analyzer computes trends with a fixed window and method.
type Analyzer struct {
	Window        int
	Method        string
	EndpointScale float64
}

// Compute returns the trend of series. The series is normalized first, so
// callers may pass unsorted input with duplicate days.
func (a Analyzer) Compute(series core.RateSeries) float64 {
	window := a.Window
	if window <= 0 {
		window = DefaultWindow
	}

	switch strings.ToLower(strings.TrimSpace(a.Method)) {
	case MethodEndpoint:
		scale := a.EndpointScale
		if scale == 0 {
			scale = DefaultEndpointScale
		}
		return EndpointTrend(tail(series.Normalize(), window), scale)
	default:
		return ComputeTrend(series, window)
	}
}

// ComputeTrend fits a least-squares line to the last window points against
// their index and returns clamp(slope*window/mean, -1, 1). Fewer than two
// points, a flat series or a near-zero mean yield 0.
func ComputeTrend(series core.RateSeries, window int) float64 {
	if window <= 0 {
		window = DefaultWindow
	}
	values := tail(series.Normalize(), window).Values()
	n := len(values)
	if n < 2 {
		return 0
	}

	var sumX, sumY float64
	flat := true
	for i, y := range values {
		sumX += float64(i)
		sumY += y
		if y != values[0] {
			flat = false
		}
	}
	if flat {
		return 0
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)
	if math.Abs(meanY) < meanEpsilon {
		return 0
	}

	var num, den float64
	for i, y := range values {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	slope := num / den

	return clamp(slope * float64(window) / meanY)
}

// EndpointTrend is the percentage change from the first to the last point,
// multiplied by scale and clamped.
func EndpointTrend(series core.RateSeries, scale float64) float64 {
	series = series.Normalize()
	if len(series) < 2 {
		return 0
	}
	first := series[0].Rate
	last := series[len(series)-1].Rate
	if math.Abs(first) < meanEpsilon {
		return 0
	}
	return clamp((last - first) / first * scale)
}

func tail(series core.RateSeries, window int) core.RateSeries {
	if len(series) > window {
		return series[len(series)-window:]
	}
	return series
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	case v == 0:
		return 0
	default:
		return v
	}
}
