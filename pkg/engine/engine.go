// Package engine implements the bar-by-bar simulation loop.
//
// The loop is single-pass: each bar is visited once, the signal generator
// is queried at that bar, and portfolio state (capital, the single open
// position, the trade ledger, the equity curve) advances in place. Every
// trade deploys the full current capital at the bar close; fractional
// shares are permitted and no fees are modeled.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/algomatic/go-backtest/pkg/strategy"
	"github.com/algomatic/go-backtest/pkg/types"
)

// DefaultInitialCapital is the starting capital when none is configured.
const DefaultInitialCapital = 10_000

// Result is the complete outcome of one simulation run. Re-running with
// identical inputs reproduces an identical Result.
type Result struct {
	InitialCapital float64             `json:"initial_capital"`
	FinalCapital   float64             `json:"final_capital"`
	Trades         []types.Trade       `json:"trades"`
	Equity         []types.EquityPoint `json:"equity_curve"`
}

// RoundTrips counts completed entry/exit pairs.
func (r *Result) RoundTrips() int {
	n := 0
	for _, t := range r.Trades {
		if t.Type == types.TradeSell {
			n++
		}
	}
	return n
}

// Engine runs one signal generator over one bar series.
type Engine struct {
	initialCapital float64
	logger         *slog.Logger
}

// New creates an engine with the given starting capital.
func New(initialCapital float64, logger *slog.Logger) (*Engine, error) {
	if initialCapital <= 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be a positive finite number, got %v",
			types.ErrInvalidParameter, initialCapital)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{initialCapital: initialCapital, logger: logger}, nil
}

// Run executes the generator over bars and returns the trade ledger and
// equity curve. Bars must already be validated and sorted; Run re-checks
// integrity and refuses to start on bad input. A series shorter than the
// generator's warmup produces a degenerate zero-trade result, not an
// error. A NaN equity value mid-run aborts with ErrNumericDegenerate.
func (e *Engine) Run(bars []types.Bar, gen strategy.Generator) (*Result, error) {
	if err := types.ValidateBars(bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty bar series", types.ErrInsufficientData)
	}

	res := &Result{
		InitialCapital: e.initialCapital,
		Trades:         make([]types.Trade, 0, 16),
		Equity:         make([]types.EquityPoint, 0, len(bars)+1),
	}
	// Initial point before any trading, anchored at the first bar.
	res.Equity = append(res.Equity, types.EquityPoint{
		Timestamp: bars[0].Timestamp,
		Equity:    e.initialCapital,
	})

	capital := e.initialCapital
	var pos *types.Position
	st := strategy.NewState()

	for i, bar := range bars {
		var sig types.Signal
		sig, st = gen.Step(i, st)

		switch {
		// A BUY on the final bar is ignored: it would be force-closed at
		// the same close for a guaranteed zero-return trade.
		case sig == types.SignalBuy && pos == nil && i < len(bars)-1:
			if bar.Close <= 0 {
				return nil, fmt.Errorf("%w: entry price %.6f at bar %d", types.ErrNumericDegenerate, bar.Close, i)
			}
			regime, _ := gen.RegimeAt(i)
			pos = &types.Position{
				EntryPrice: bar.Close,
				EntryIndex: i,
				EntryTime:  bar.Timestamp,
				Shares:     capital / bar.Close,
				Regime:     regime,
			}
			res.Trades = append(res.Trades, types.Trade{
				Timestamp: bar.Timestamp,
				Type:      types.TradeBuy,
				Price:     bar.Close,
				Shares:    pos.Shares,
				Capital:   capital,
				Regime:    regime.String(),
			})
			e.logger.Debug("opened position",
				"bar", i, "price", bar.Close, "shares", pos.Shares, "regime", regime.String())

		case sig == types.SignalSell && pos != nil:
			capital = e.closePosition(res, pos, bar, false)
			pos = nil
		}

		equity := capital
		if pos != nil {
			equity = pos.Shares * bar.Close
		}
		if math.IsNaN(equity) || math.IsInf(equity, 0) {
			return nil, fmt.Errorf("%w: equity is %v at bar %d", types.ErrNumericDegenerate, equity, i)
		}
		res.Equity = append(res.Equity, types.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    equity,
		})
	}

	if pos != nil {
		last := bars[len(bars)-1]
		capital = e.closePosition(res, pos, last, true)
		res.Equity[len(res.Equity)-1].Equity = capital
	}

	res.FinalCapital = capital
	e.logger.Debug("run complete",
		"bars", len(bars),
		"trades", len(res.Trades),
		"round_trips", res.RoundTrips(),
		"final_capital", capital,
	)
	return res, nil
}

// closePosition realizes the open position at the bar close and appends
// the SELL record. Forced marks the end-of-data liquidation.
func (e *Engine) closePosition(res *Result, pos *types.Position, bar types.Bar, forced bool) float64 {
	proceeds := pos.Shares * bar.Close
	returnPct := (bar.Close - pos.EntryPrice) / pos.EntryPrice * 100
	res.Trades = append(res.Trades, types.Trade{
		Timestamp: bar.Timestamp,
		Type:      types.TradeSell,
		Price:     bar.Close,
		Shares:    pos.Shares,
		Capital:   proceeds,
		ReturnPct: returnPct,
		Regime:    pos.Regime.String(),
		Forced:    forced,
	})
	e.logger.Debug("closed position",
		"price", bar.Close, "return_pct", returnPct, "forced", forced)
	return proceeds
}
