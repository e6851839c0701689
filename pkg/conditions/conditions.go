// Package conditions provides the reusable predicates the signal
// generators are built from. Each predicate evaluates one indicator
// relationship at a bar index using only values at that index or earlier,
// and returns false whenever a needed value is NaN, so undefined data
// never produces a signal.
package conditions

import "math"

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CrossesAbove reports whether series a crosses above series b between
// bars i-1 and i: a[i-1] <= b[i-1] and a[i] > b[i].
func CrossesAbove(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	if !finite(a[i-1], a[i], b[i-1], b[i]) {
		return false
	}
	return a[i-1] <= b[i-1] && a[i] > b[i]
}

// CrossesBelow reports whether series a crosses below series b between
// bars i-1 and i: a[i-1] >= b[i-1] and a[i] < b[i].
func CrossesBelow(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	if !finite(a[i-1], a[i], b[i-1], b[i]) {
		return false
	}
	return a[i-1] >= b[i-1] && a[i] < b[i]
}

// CrossPair evaluates a crossover from explicit previous/current values,
// for generators that carry the previous pair in an accumulator instead of
// a full series (the adaptive-period variants).
type CrossPair struct {
	PrevFast, PrevSlow float64
	Fast, Slow         float64
}

// Bullish reports a fast-over-slow crossover.
func (c CrossPair) Bullish() bool {
	if !finite(c.PrevFast, c.PrevSlow, c.Fast, c.Slow) {
		return false
	}
	return c.PrevFast <= c.PrevSlow && c.Fast > c.Slow
}

// Bearish reports a fast-under-slow crossunder.
func (c CrossPair) Bearish() bool {
	if !finite(c.PrevFast, c.PrevSlow, c.Fast, c.Slow) {
		return false
	}
	return c.PrevFast >= c.PrevSlow && c.Fast < c.Slow
}

// AtOrAboveValue reports series[i] >= threshold.
func AtOrAboveValue(series []float64, i int, threshold float64) bool {
	if i < 0 || i >= len(series) || !finite(series[i]) {
		return false
	}
	return series[i] >= threshold
}

// WithinBand reports lo <= series[i] <= hi.
func WithinBand(series []float64, i int, lo, hi float64) bool {
	if i < 0 || i >= len(series) || !finite(series[i]) {
		return false
	}
	return series[i] >= lo && series[i] <= hi
}

// AboveSeries reports a[i] > b[i].
func AboveSeries(a, b []float64, i int) bool {
	if i < 0 || i >= len(a) || i >= len(b) {
		return false
	}
	if !finite(a[i], b[i]) {
		return false
	}
	return a[i] > b[i]
}

// BreaksAbove reports price breaking above the previous bar's level:
// price > level[i-1]. The one-bar lag keeps channel breakouts free of
// lookahead, since level[i] already includes the current bar.
func BreaksAbove(price float64, level []float64, i int) bool {
	if i < 1 || i > len(level) || !finite(price) || !finite(level[i-1]) {
		return false
	}
	return price > level[i-1]
}

// BreaksBelow reports price breaking below the previous bar's level:
// price < level[i-1].
func BreaksBelow(price float64, level []float64, i int) bool {
	if i < 1 || i > len(level) || !finite(price) || !finite(level[i-1]) {
		return false
	}
	return price < level[i-1]
}
