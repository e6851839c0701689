package strategy

import (
	"fmt"

	"github.com/algomatic/go-backtest/pkg/conditions"
	"github.com/algomatic/go-backtest/pkg/indicators"
	"github.com/algomatic/go-backtest/pkg/types"
)

// emaV1 is the three-regime EMA crossover generator. The volatility
// percentile picks one of three fast/slow period pairs per bar, and the
// crossover test reads the selected pair's series at i-1 and i. Evaluating
// both bars on the same pair keeps a regime switch from manufacturing a
// cross that neither pair saw on its own.
type emaV1 struct {
	params  *AdaptiveEMAV1Params
	emas    map[int][]float64
	volRank []float64
	warmup  int
}

func newEMAV1(p *AdaptiveEMAV1Params, bars []types.Bar, cache *indicators.Cache) (*emaV1, error) {
	cols := types.NewColumns(bars)
	if err := cache.PrecomputeEMAs(cols.Close, p.Regimes.Periods(), nil); err != nil {
		return nil, err
	}
	if err := cache.PrecomputeVolRank(cols.High, cols.Low, cols.Close, p.ATRLength, p.VolLength, p.WarmupRank); err != nil {
		return nil, err
	}
	g := &emaV1{
		params: p,
		emas:   make(map[int][]float64, 6),
		warmup: p.Warmup(),
	}
	for _, period := range p.Regimes.Periods() {
		series, ok := cache.EMASeries(period)
		if !ok {
			return nil, fmt.Errorf("%w: ema(%d) missing from cache", types.ErrInsufficientData, period)
		}
		g.emas[period] = series
	}
	g.volRank, _ = cache.VolRank(p.ATRLength, p.VolLength)
	return g, nil
}

// Warmup implements Generator.
func (g *emaV1) Warmup() int { return g.warmup }

// RegimeAt implements Generator.
func (g *emaV1) RegimeAt(i int) (types.Regime, bool) {
	if i < 0 || i >= len(g.volRank) {
		return types.RegimeMedium, false
	}
	pct := g.volRank[i]
	if pct != pct { // NaN while the rank is warming up
		return types.RegimeMedium, false
	}
	return SelectRegime(pct, g.params.LowPct, g.params.HighPct), true
}

// Step implements Generator.
func (g *emaV1) Step(i int, st State) (types.Signal, State) {
	if i < g.warmup || i >= len(g.volRank) {
		return types.SignalNone, st
	}
	regime, ok := g.RegimeAt(i)
	if !ok {
		return types.SignalNone, st
	}
	pair := g.params.Regimes.Pair(regime)
	fast := g.emas[pair.Fast]
	slow := g.emas[pair.Slow]

	switch {
	case !st.InPosition && conditions.CrossesAbove(fast, slow, i):
		st.InPosition = true
		return types.SignalBuy, st
	case st.InPosition && conditions.CrossesBelow(fast, slow, i):
		st.InPosition = false
		return types.SignalSell, st
	}
	return types.SignalNone, st
}
