package indicators

import (
	"fmt"
	"math"

	"github.com/algomatic/go-backtest/pkg/types"
)

// TrueRange computes max(high-low, |high-prevClose|, |low-prevClose|) per
// bar. Bar 0 has no previous close and uses high-low only.
func TrueRange(high, low, closes []float64) ([]float64, error) {
	if len(high) != len(low) || len(high) != len(closes) {
		return nil, fmt.Errorf("%w: high/low/close lengths differ (%d/%d/%d)",
			types.ErrInvalidParameter, len(high), len(low), len(closes))
	}
	out := make([]float64, len(high))
	for i := range high {
		hl := high[i] - low[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(high[i] - closes[i-1])
		lc := math.Abs(low[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out, nil
}

// ATR is the EMA of the true range, with the same smoothing and seeding as
// EMA.
func ATR(high, low, closes []float64, period int) ([]float64, error) {
	tr, err := TrueRange(high, low, closes)
	if err != nil {
		return nil, err
	}
	return EMA(tr, period)
}

// NormalizedATR returns ATR expressed as a percentage of the close price.
func NormalizedATR(high, low, closes []float64, period int) ([]float64, error) {
	atr, err := ATR(high, low, closes, period)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(atr))
	for i := range atr {
		if closes[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = atr[i] / closes[i] * 100
	}
	return out, nil
}

// HighestHigh returns the rolling maximum over a trailing window of length
// period (the upper Donchian channel). Indices before period-1 are NaN.
func HighestHigh(high []float64, period int) ([]float64, error) {
	return rollingExtreme(high, period, math.Max)
}

// LowestLow returns the rolling minimum over a trailing window of length
// period (the lower Donchian channel). Indices before period-1 are NaN.
func LowestLow(low []float64, period int) ([]float64, error) {
	return rollingExtreme(low, period, math.Min)
}

func rollingExtreme(values []float64, period int, pick func(a, b float64) float64) ([]float64, error) {
	if err := checkPeriod(period, len(values)); err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		ext := values[i]
		for j := i - period + 1; j < i; j++ {
			ext = pick(ext, values[j])
		}
		out[i] = ext
	}
	return out, nil
}
