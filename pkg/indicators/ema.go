// Package indicators provides the technical indicator primitives used by
// the strategy definitions: EMA, ATR, ADX, RSI, SMA, Donchian channels and
// the volatility percentile rank.
//
// All functions are pure: they take value slices and return a new slice
// aligned 1:1 with the input. Values before an indicator's warmup horizon
// are NaN, and NaN inputs propagate forward through the recurrences rather
// than raising errors. Period validation fails with ErrInvalidParameter.
package indicators

import (
	"fmt"
	"math"

	"github.com/algomatic/go-backtest/pkg/types"
)

func checkPeriod(period, n int) error {
	if period < 1 {
		return fmt.Errorf("%w: period %d must be >= 1", types.ErrInvalidParameter, period)
	}
	if period > n {
		return fmt.Errorf("%w: period %d exceeds series length %d", types.ErrInvalidParameter, period, n)
	}
	return nil
}

// EMA computes the exponential moving average with smoothing
// alpha = 2/(period+1). The value at index period-1 is seeded with the
// simple average of the first period values; earlier indices are NaN.
func EMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values)); err != nil {
		return nil, err
	}
	return emaFrom(values, period, 0), nil
}

// emaFrom runs the EMA recurrence starting at offset start: the seed lands
// at index start+period-1 and everything before it is NaN. Used directly by
// ADX, whose DX input is only defined after the DI warmup.
func emaFrom(values []float64, period, start int) []float64 {
	out := make([]float64, len(values))
	seedIdx := start + period - 1
	for i := 0; i < len(out) && i < seedIdx; i++ {
		out[i] = math.NaN()
	}
	if seedIdx >= len(values) {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := start; i <= seedIdx; i++ {
		sum += values[i]
	}
	out[seedIdx] = sum / float64(period)
	alpha := 2.0 / (float64(period) + 1.0)
	for i := seedIdx + 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA computes the simple moving average over a trailing window of length
// period. Indices before period-1 are NaN.
func SMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values)); err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	var sum float64
	for i := range values {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}
