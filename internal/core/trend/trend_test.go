package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfx/tripfx/internal/core"
)

func seriesOf(values ...float64) core.RateSeries {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(core.RateSeries, len(values))
	for i, v := range values {
		series[i] = core.RatePoint{Date: start.AddDate(0, 0, i), Rate: v}
	}
	return series
}

func TestComputeTrendShortSeries(t *testing.T) {
	require.Equal(t, 0.0, ComputeTrend(nil, 30))
	require.Equal(t, 0.0, ComputeTrend(seriesOf(0.92), 30))
}

func TestComputeTrendFlat(t *testing.T) {
	require.Equal(t, 0.0, ComputeTrend(seriesOf(0.78, 0.78, 0.78, 0.78), 30))
	require.Equal(t, 0.0, EndpointTrend(seriesOf(0.78, 0.78), 10))
}

func TestComputeTrendSign(t *testing.T) {
	up := seriesOf(1.00, 1.01, 1.02, 1.03, 1.04)
	down := seriesOf(1.04, 1.03, 1.02, 1.01, 1.00)

	assert.Greater(t, ComputeTrend(up, 30), 0.0)
	assert.Less(t, ComputeTrend(down, 30), 0.0)
	assert.Greater(t, EndpointTrend(up, 10), 0.0)
	assert.Less(t, EndpointTrend(down, 10), 0.0)
}

func TestComputeTrendValue(t *testing.T) {
	// slope 0.001 per day, mean 1.001, window 30 => 0.02997...
	got := ComputeTrend(seriesOf(1.000, 1.001, 1.002), 30)
	assert.InDelta(t, 0.001*30/1.001, got, 1e-9)
}

func TestComputeTrendClamps(t *testing.T) {
	require.Equal(t, 1.0, ComputeTrend(seriesOf(1, 2, 3), 30))
	require.Equal(t, -1.0, ComputeTrend(seriesOf(3, 2, 1), 30))
	require.Equal(t, 1.0, EndpointTrend(seriesOf(1, 1.5), 10))
}

func TestComputeTrendUsesLastWindow(t *testing.T) {
	values := []float64{5, 4, 3, 2, 1, 1, 1, 1}
	require.Equal(t, 0.0, ComputeTrend(seriesOf(values...), 4))
	require.Less(t, ComputeTrend(seriesOf(values...), 8), 0.0)
}

func TestComputeTrendSortsInput(t *testing.T) {
	up := seriesOf(1.00, 1.01, 1.02)
	shuffled := core.RateSeries{up[2], up[0], up[1]}
	require.Equal(t, ComputeTrend(up, 30), ComputeTrend(shuffled, 30))
}

func TestComputeTrendZeroMean(t *testing.T) {
	require.Equal(t, 0.0, ComputeTrend(core.RateSeries{}, 30))
	require.Equal(t, 0.0, EndpointTrend(seriesOf(0, 1), 10))
}

func TestAnalyzerMethods(t *testing.T) {
	series := seriesOf(1.000, 1.010)

	regression := Analyzer{Window: 30}
	endpoint := Analyzer{Window: 30, Method: "Endpoint"}

	assert.InDelta(t, 0.01*30/1.005, regression.Compute(series), 1e-9)
	assert.InDelta(t, 0.1, endpoint.Compute(series), 1e-9)
	assert.Equal(t, 0.0, Analyzer{}.Compute(seriesOf(2, 2, 2)))
}
