package strategy

import (
	"math"

	"github.com/algomatic/go-backtest/pkg/conditions"
	"github.com/algomatic/go-backtest/pkg/indicators"
	"github.com/algomatic/go-backtest/pkg/types"
)

// entryFilters are the optional confirmation checks layered on top of the
// adaptive crossover entry. A zero length disables the corresponding
// filter. Filters gate entries only; exits always follow the crossover.
type entryFilters struct {
	adxLength    int
	adxThreshold float64

	rsiLength int
	rsiMin    float64
	rsiMax    float64

	volumeMALength int
}

// emaV2 is the two-regime adaptive-period crossover generator shared by
// the v2, v2_1 and vol_v1 variants. When the volatility percentile is at
// or above the threshold the EMA periods stretch by the configured
// multipliers; the crossover baseline is carried in State so a period
// switch between bars is compared against the values the previous bar
// actually traded on.
type emaV2 struct {
	params  *AdaptiveEMAV2Params
	scaled  EMAPair
	emas    map[int][]float64
	volRank []float64
	warmup  int

	filters *entryFilters
	adx     []float64
	rsi     []float64
	volume  []float64
	volMA   []float64
}

func newEMAV2(p *AdaptiveEMAV2Params, bars []types.Bar, cache *indicators.Cache, filters *entryFilters) (*emaV2, error) {
	cols := types.NewColumns(bars)
	scaled := ScaledPair(p.Base, p.FastMult, p.SlowMult)
	periods := dedupPeriods(p.Base.Fast, p.Base.Slow, scaled.Fast, scaled.Slow)
	if err := cache.PrecomputeEMAs(cols.Close, periods, nil); err != nil {
		return nil, err
	}
	if err := cache.PrecomputeVolRank(cols.High, cols.Low, cols.Close, p.ATRLength, p.VolLength, p.WarmupRank); err != nil {
		return nil, err
	}

	g := &emaV2{
		params: p,
		scaled: scaled,
		emas:   make(map[int][]float64, len(periods)),
	}
	for _, period := range periods {
		series, _ := cache.EMASeries(period)
		g.emas[period] = series
	}
	g.volRank, _ = cache.VolRank(p.ATRLength, p.VolLength)

	warmup := p.ATRLength
	for _, n := range []int{p.VolLength, scaled.Slow} {
		if n > warmup {
			warmup = n
		}
	}
	if filters != nil {
		var err error
		if filters.adxLength > 0 {
			g.adx, err = indicators.ADX(cols.High, cols.Low, cols.Close, filters.adxLength)
			if err != nil {
				return nil, err
			}
			if filters.adxLength > warmup {
				warmup = filters.adxLength
			}
		}
		if filters.rsiLength > 0 {
			g.rsi, err = indicators.RSI(cols.Close, filters.rsiLength)
			if err != nil {
				return nil, err
			}
			if filters.rsiLength > warmup {
				warmup = filters.rsiLength
			}
		}
		if filters.volumeMALength > 0 {
			g.volume = cols.Volume
			g.volMA, err = indicators.SMA(cols.Volume, filters.volumeMALength)
			if err != nil {
				return nil, err
			}
			if filters.volumeMALength > warmup {
				warmup = filters.volumeMALength
			}
		}
		g.filters = filters
	}
	g.warmup = warmup + settleBuffer
	return g, nil
}

func dedupPeriods(periods ...int) []int {
	seen := make(map[int]bool, len(periods))
	var out []int
	for _, p := range periods {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Warmup implements Generator.
func (g *emaV2) Warmup() int { return g.warmup }

// activePair returns the EMA pair selected by the volatility rank at i.
func (g *emaV2) activePair(i int) EMAPair {
	if r, ok := g.RegimeAt(i); ok && r == types.RegimeHigh {
		return g.scaled
	}
	return g.params.Base
}

// RegimeAt implements Generator. The two-regime variants report HIGH when
// the rank clears the threshold and MEDIUM otherwise.
func (g *emaV2) RegimeAt(i int) (types.Regime, bool) {
	if i < 0 || i >= len(g.volRank) {
		return types.RegimeMedium, false
	}
	pct := g.volRank[i]
	if math.IsNaN(pct) {
		return types.RegimeMedium, false
	}
	if pct >= g.params.VolThreshold {
		return types.RegimeHigh, true
	}
	return types.RegimeMedium, true
}

// entryConfirmed applies the optional ADX, RSI-band and volume filters.
// A filter whose input is still NaN at i vetoes the entry.
func (g *emaV2) entryConfirmed(i int) bool {
	if g.filters == nil {
		return true
	}
	if g.adx != nil && !conditions.AtOrAboveValue(g.adx, i, g.filters.adxThreshold) {
		return false
	}
	if g.rsi != nil && !conditions.WithinBand(g.rsi, i, g.filters.rsiMin, g.filters.rsiMax) {
		return false
	}
	if g.volMA != nil && !conditions.AboveSeries(g.volume, g.volMA, i) {
		return false
	}
	return true
}

// Step implements Generator.
func (g *emaV2) Step(i int, st State) (types.Signal, State) {
	if i < g.warmup || i >= len(g.volRank) {
		return types.SignalNone, st
	}
	pair := g.activePair(i)
	fast := g.emas[pair.Fast][i]
	slow := g.emas[pair.Slow][i]

	cross := conditions.CrossPair{
		PrevFast: st.PrevFast,
		PrevSlow: st.PrevSlow,
		Fast:     fast,
		Slow:     slow,
	}
	next := st
	next.PrevFast = fast
	next.PrevSlow = slow

	switch {
	case !st.InPosition && cross.Bullish() && g.entryConfirmed(i):
		next.InPosition = true
		return types.SignalBuy, next
	case st.InPosition && cross.Bearish():
		next.InPosition = false
		return types.SignalSell, next
	}
	return types.SignalNone, next
}
