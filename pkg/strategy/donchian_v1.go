package strategy

import (
	"github.com/algomatic/go-backtest/pkg/conditions"
	"github.com/algomatic/go-backtest/pkg/indicators"
	"github.com/algomatic/go-backtest/pkg/types"
)

// donchianV1 is the channel breakout generator. Entry fires when the bar
// high clears the previous bar's upper channel plus an ATR buffer and the
// ADX confirms a trend; exit fires when the bar low breaks the previous
// bar's lower channel. Channels are compared at i-1 because the value at
// i already includes the current bar.
type donchianV1 struct {
	params *AdaptiveDonchianV1Params
	highs  []float64
	lows   []float64
	upper  []float64
	lower  []float64
	adx    []float64
	warmup int
}

func newDonchianV1(p *AdaptiveDonchianV1Params, bars []types.Bar) (*donchianV1, error) {
	cols := types.NewColumns(bars)
	upper, err := indicators.HighestHigh(cols.High, p.DonchianLength)
	if err != nil {
		return nil, err
	}
	lower, err := indicators.LowestLow(cols.Low, p.DonchianLength)
	if err != nil {
		return nil, err
	}
	adx, err := indicators.ADX(cols.High, cols.Low, cols.Close, p.ADXLength)
	if err != nil {
		return nil, err
	}
	if p.ATRMultiplier > 0 {
		atr, err := indicators.ATR(cols.High, cols.Low, cols.Close, p.ATRLength)
		if err != nil {
			return nil, err
		}
		for i := range upper {
			upper[i] += atr[i] * p.ATRMultiplier
		}
	}
	return &donchianV1{
		params: p,
		highs:  cols.High,
		lows:   cols.Low,
		upper:  upper,
		lower:  lower,
		adx:    adx,
		warmup: p.Warmup(),
	}, nil
}

// Warmup implements Generator.
func (g *donchianV1) Warmup() int { return g.warmup }

// RegimeAt implements Generator. Breakout entries are not regime-gated.
func (g *donchianV1) RegimeAt(int) (types.Regime, bool) {
	return types.RegimeMedium, false
}

// Step implements Generator.
func (g *donchianV1) Step(i int, st State) (types.Signal, State) {
	if i < g.warmup || i >= len(g.highs) {
		return types.SignalNone, st
	}
	switch {
	case !st.InPosition &&
		conditions.BreaksAbove(g.highs[i], g.upper, i) &&
		conditions.AtOrAboveValue(g.adx, i, g.params.ADXThreshold):
		st.InPosition = true
		return types.SignalBuy, st
	case st.InPosition && conditions.BreaksBelow(g.lows[i], g.lower, i):
		st.InPosition = false
		return types.SignalSell, st
	}
	return types.SignalNone, st
}
