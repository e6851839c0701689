package indicators

import "math"

// ADX computes the Wilder-style Average Directional Index. Directional
// movement is taken from consecutive high/low differences, smoothed with
// the same EMA recurrence as everything else, and divided by ATR for the
// directional indicators. DX where +DI + -DI == 0 is NaN, never Inf, and
// ADX itself is the EMA of DX seeded after the DI warmup.
func ADX(high, low, closes []float64, period int) ([]float64, error) {
	atr, err := ATR(high, low, closes, period)
	if err != nil {
		return nil, err
	}
	n := len(high)

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	plusSmooth := emaFrom(plusDM, period, 0)
	minusSmooth := emaFrom(minusDM, period, 0)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			dx[i] = math.NaN()
			continue
		}
		plusDI := 100 * plusSmooth[i] / atr[i]
		minusDI := 100 * minusSmooth[i] / atr[i]
		sum := plusDI + minusDI
		if math.IsNaN(sum) || sum == 0 {
			dx[i] = math.NaN()
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	// DX is only defined once ATR is, so seed the ADX smoothing there.
	return emaFrom(dx, period, period-1), nil
}
