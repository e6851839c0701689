package strategy

import (
	"fmt"
	"math"

	"github.com/algomatic/go-backtest/pkg/indicators"
	"github.com/algomatic/go-backtest/pkg/types"
)

// State is the per-run signal accumulator threaded through Step calls.
// The generator itself stays immutable after construction so one generator
// can serve repeated runs over the same bars.
type State struct {
	InPosition bool
	// PrevFast and PrevSlow carry the crossover baseline across bars for
	// the variants whose active EMA periods can switch between bars.
	PrevFast float64
	PrevSlow float64
}

// NewState returns the starting accumulator for a run. The crossover
// baseline starts as NaN so the first evaluated bar can never read a
// phantom cross against zero.
func NewState() State {
	return State{PrevFast: math.NaN(), PrevSlow: math.NaN()}
}

// Generator produces at most one signal per bar, strictly left to right.
// Step at index i may read bars [0, i] only.
type Generator interface {
	// Warmup is the first index at which Step may emit a signal.
	Warmup() int
	// Step evaluates bar i and returns the signal plus the advanced state.
	Step(i int, st State) (types.Signal, State)
	// RegimeAt reports the volatility regime active at bar i. The second
	// return is false for variants without a regime notion or while the
	// regime input is still warming up.
	RegimeAt(i int) (types.Regime, bool)
}

// New builds the generator for a validated parameter record over the given
// bars. The cache, when non-nil, supplies precomputed EMA and volatility
// series shared across a parameter sweep; when nil a private cache is
// filled. Indicator errors (for example a period longer than the series)
// surface here, before any bar is stepped.
func New(p Params, bars []types.Bar, cache *indicators.Cache) (Generator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cache == nil {
		cache = indicators.NewCache()
	}
	switch params := p.(type) {
	case *AdaptiveEMAV1Params:
		return newEMAV1(params, bars, cache)
	case *AdaptiveEMAV21Params:
		return newEMAV2(&params.AdaptiveEMAV2Params, bars, cache, &entryFilters{
			adxLength:    params.ADXLength,
			adxThreshold: params.ADXThreshold,
		})
	case *AdaptiveEMAVolV1Params:
		return newEMAV2(&params.AdaptiveEMAV2Params, bars, cache, &entryFilters{
			adxLength:      params.ADXLength,
			adxThreshold:   params.ADXThreshold,
			rsiLength:      params.RSILength,
			rsiMin:         params.RSITrendingMin,
			rsiMax:         params.RSITrendingMax,
			volumeMALength: params.VolumeMALength,
		})
	case *AdaptiveEMAV2Params:
		return newEMAV2(params, bars, cache, nil)
	case *AdaptiveDonchianV1Params:
		return newDonchianV1(params, bars)
	}
	return nil, fmt.Errorf("%w: unsupported parameter type %T", types.ErrInvalidParameter, p)
}
