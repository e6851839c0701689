package indicators

import "math"

// WarmupRankPolicy controls what VolatilityRank reports while the trailing
// window has fewer than MinRankHistory valid samples. The original strategy
// variants disagree on this, so it is an explicit choice per strategy.
type WarmupRankPolicy int

const (
	// WarmupRankMedium reports 50 during warmup, which maps to the MEDIUM
	// regime under any sane cut points.
	WarmupRankMedium WarmupRankPolicy = iota
	// WarmupRankNaN reports NaN during warmup, suppressing signals.
	WarmupRankNaN
)

// MinRankHistory is the minimum number of valid samples in the trailing
// window before a percentile rank is considered meaningful.
const MinRankHistory = 20

// VolatilityRank computes, for each bar, the percentile rank of the current
// value against the trailing window of length window ending at the bar
// (inclusive): count(values <= current) / window length * 100. The divisor
// is the window length, not the count of defined values: a NaN in the
// window compares as not-<= and still occupies a slot, so ranks stay
// deflated while the window overlaps an indicator's warmup. Bars whose
// window holds fewer than MinRankHistory valid samples report the warmup
// policy value; a NaN current value always ranks NaN.
func VolatilityRank(values []float64, window int, policy WarmupRankPolicy) ([]float64, error) {
	if err := checkPeriod(window, len(values)); err != nil {
		return nil, err
	}
	warmup := 50.0
	if policy == WarmupRankNaN {
		warmup = math.NaN()
	}
	out := make([]float64, len(values))
	for i := range values {
		cur := values[i]
		if math.IsNaN(cur) {
			out[i] = math.NaN()
			continue
		}
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		valid := 0
		leq := 0
		for j := start; j <= i; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			valid++
			if values[j] <= cur {
				leq++
			}
		}
		if valid < MinRankHistory {
			out[i] = warmup
			continue
		}
		out[i] = float64(leq) / float64(i-start+1) * 100
	}
	return out, nil
}
