package strategy

import "github.com/algomatic/go-backtest/pkg/types"

// SelectRegime maps a volatility percentile rank to a regime bucket:
// below lowCut is LOW, at or above highCut is HIGH, everything else MEDIUM.
func SelectRegime(percentile, lowCut, highCut float64) types.Regime {
	switch {
	case percentile < lowCut:
		return types.RegimeLow
	case percentile >= highCut:
		return types.RegimeHigh
	default:
		return types.RegimeMedium
	}
}

// EMAPair is a fast/slow EMA period pair.
type EMAPair struct {
	Fast int
	Slow int
}

// RegimeTable maps each volatility regime to its EMA pair. Three-regime
// variants carry one fully configured table.
type RegimeTable struct {
	Low    EMAPair
	Medium EMAPair
	High   EMAPair
}

// Pair returns the EMA pair for a regime.
func (t RegimeTable) Pair(r types.Regime) EMAPair {
	switch r {
	case types.RegimeLow:
		return t.Low
	case types.RegimeHigh:
		return t.High
	default:
		return t.Medium
	}
}

// Periods lists every distinct EMA period in the table, for cache warming.
func (t RegimeTable) Periods() []int {
	seen := make(map[int]bool, 6)
	var out []int
	for _, p := range []int{t.Low.Fast, t.Low.Slow, t.Medium.Fast, t.Medium.Slow, t.High.Fast, t.High.Slow} {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// ScaledPair derives the high-volatility EMA pair for the two-regime
// variants by scaling a base pair. Multipliers are >= 1 and the scaled
// periods are truncated to ints, matching the period arithmetic the
// adaptive variants were tuned with.
func ScaledPair(base EMAPair, fastMult, slowMult float64) EMAPair {
	return EMAPair{
		Fast: int(float64(base.Fast) * fastMult),
		Slow: int(float64(base.Slow) * slowMult),
	}
}
