package indicators

import "math"

// RSI computes the Relative Strength Index from simple rolling means of
// gains and losses over the period (not exponentially smoothed). A zero
// average loss yields RSI = 100, never a division error. Indices before
// the first full window are NaN.
func RSI(closes []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(closes)); err != nil {
		return nil, err
	}
	n := len(closes)
	out := make([]float64, n)

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	var gainSum, lossSum float64
	for i := 0; i < n; i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		// The first diff lands at index 1, so a full window needs i >= period.
		if i < period {
			out[i] = math.NaN()
			continue
		}
		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
			out[i] = math.NaN()
			continue
		}
		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out, nil
}
