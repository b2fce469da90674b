package analytics

import "math"

// Trend is the direction of a fitted series.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// flatThreshold is the slope, relative to the series mean, below which a
// trend counts as flat.
const flatThreshold = 0.01

// ForecastResult is a least-squares line fitted to a series plus its
// projection.
type ForecastResult struct {
	Values    []float64 `json:"values"`
	Slope     float64   `json:"slope"`
	Intercept float64   `json:"intercept"`
	RSquared  float64   `json:"r_squared"`
	Trend     Trend     `json:"trend"`
}

// Forecast fits y = slope*x + intercept over x = 0..n-1 and projects the
// next periods values. Projections never go below zero. With fewer than
// two points the last value (or zero) is repeated and the trend is flat.
func Forecast(series []float64, periods int) ForecastResult {
	if periods < 0 {
		periods = 0
	}
	n := len(series)
	if n < 2 {
		last := 0.0
		if n == 1 {
			last = series[0]
		}
		values := make([]float64, periods)
		for i := range values {
			values[i] = math.Max(last, 0)
		}
		return ForecastResult{Values: values, Intercept: last, Trend: TrendFlat}
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, y := range series {
		yMean += y
	}
	yMean /= float64(n)

	var sxy, sxx float64
	for i, y := range series {
		dx := float64(i) - xMean
		sxy += dx * (y - yMean)
		sxx += dx * dx
	}
	slope := sxy / sxx
	intercept := yMean - slope*xMean

	var ssRes, ssTot float64
	for i, y := range series {
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - yMean) * (y - yMean)
	}
	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	values := make([]float64, periods)
	for i := range values {
		values[i] = math.Max(slope*float64(n+i)+intercept, 0)
	}

	return ForecastResult{
		Values:    values,
		Slope:     slope,
		Intercept: intercept,
		RSquared:  r2,
		Trend:     trendOf(slope, yMean),
	}
}

func trendOf(slope, mean float64) Trend {
	switch {
	case math.Abs(slope) < flatThreshold*math.Abs(mean):
		return TrendFlat
	case slope == 0:
		return TrendFlat
	case slope > 0:
		return TrendUp
	default:
		return TrendDown
	}
}
