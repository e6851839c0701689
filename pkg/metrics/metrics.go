// Package metrics derives performance statistics from a finished run's
// equity curve and trade ledger. Every ratio has an explicit zero
// fallback for its degenerate case so a valid run can never yield NaN in
// a reported metric.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/algomatic/go-backtest/pkg/types"
)

// ProfitFactor is gross profit over gross loss. With winners and no
// losers the ratio is infinite; that case is carried as an explicit tag
// so serialized results never contain a raw Infinity literal.
type ProfitFactor struct {
	Value    float64
	Infinite bool
}

// MarshalJSON encodes an infinite factor as the string "inf".
func (pf ProfitFactor) MarshalJSON() ([]byte, error) {
	if pf.Infinite {
		return json.Marshal("inf")
	}
	return json.Marshal(pf.Value)
}

// UnmarshalJSON accepts either a number or the "inf" sentinel.
func (pf *ProfitFactor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "inf" {
			return fmt.Errorf("profit factor: unknown sentinel %q", s)
		}
		pf.Infinite = true
		pf.Value = 0
		return nil
	}
	pf.Infinite = false
	return json.Unmarshal(data, &pf.Value)
}

// AtLeast reports whether the factor is >= x. Infinite beats any finite x.
func (pf ProfitFactor) AtLeast(x float64) bool {
	return pf.Infinite || pf.Value >= x
}

// Summary is the full metric set for one run.
type Summary struct {
	TotalReturnPct   float64      `json:"total_return_pct"`
	BuyHoldReturnPct float64      `json:"buy_hold_return_pct"`
	AlphaPct         float64      `json:"alpha_pct"`
	MaxDrawdownPct   float64      `json:"max_drawdown_pct"`
	CalmarRatio      float64      `json:"calmar_ratio"`
	SharpeRatio      float64      `json:"sharpe_ratio"`
	SortinoRatio     float64      `json:"sortino_ratio"`
	WinRatePct       float64      `json:"win_rate_pct"`
	ProfitFactor     ProfitFactor `json:"profit_factor"`
	RoundTrips       int          `json:"round_trips"`
}

// Compute derives the summary from an equity curve, the trade ledger and
// the bar series the run consumed. The interval fixes the annualization
// factor for Sharpe and Sortino. Fails with ErrNumericDegenerate when the
// curve starts at zero or contains a non-finite value.
func Compute(equity []types.EquityPoint, trades []types.Trade, bars []types.Bar, interval types.Interval) (*Summary, error) {
	if len(equity) < 2 {
		return nil, fmt.Errorf("%w: equity curve has %d points, need at least 2", types.ErrInsufficientData, len(equity))
	}
	first := equity[0].Equity
	last := equity[len(equity)-1].Equity
	if first <= 0 || !finite(first) || !finite(last) {
		return nil, fmt.Errorf("%w: equity endpoints %v -> %v", types.ErrNumericDegenerate, first, last)
	}

	s := &Summary{
		TotalReturnPct: (last - first) / first * 100,
		MaxDrawdownPct: maxDrawdown(equity),
	}
	if s.MaxDrawdownPct != 0 {
		s.CalmarRatio = s.TotalReturnPct / s.MaxDrawdownPct
	}

	returns, err := barReturns(equity)
	if err != nil {
		return nil, err
	}
	ann := math.Sqrt(interval.AnnualizationFactor())
	s.SharpeRatio = ratio(returns, ann, false)
	s.SortinoRatio = ratio(returns, ann, true)

	s.WinRatePct, s.ProfitFactor, s.RoundTrips = tradeStats(trades)

	if len(bars) > 0 && bars[0].Close > 0 {
		s.BuyHoldReturnPct = (bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close * 100
	}
	s.AlphaPct = s.TotalReturnPct - s.BuyHoldReturnPct
	return s, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// maxDrawdown is the worst peak-to-trough decline as a positive
// percentage. Zero for a non-decreasing curve.
func maxDrawdown(equity []types.EquityPoint) float64 {
	peak := equity[0].Equity
	worst := 0.0
	for _, pt := range equity {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			dd := (peak - pt.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// barReturns computes per-bar percentage changes across the curve.
func barReturns(equity []types.EquityPoint) ([]float64, error) {
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 || !finite(prev) || !finite(equity[i].Equity) {
			return nil, fmt.Errorf("%w: equity %v at point %d", types.ErrNumericDegenerate, prev, i-1)
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out, nil
}

// ratio computes an annualized mean-over-deviation ratio. With
// downsideOnly the deviation uses negative returns only (Sortino). A zero
// or undefined deviation yields the 0 fallback.
func ratio(returns []float64, annualize float64, downsideOnly bool) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	sample := returns
	if downsideOnly {
		sample = sample[:0:0]
		for _, r := range returns {
			if r < 0 {
				sample = append(sample, r)
			}
		}
		if len(sample) < 2 {
			return 0
		}
	}
	devMean := 0.0
	for _, r := range sample {
		devMean += r
	}
	devMean /= float64(len(sample))
	ss := 0.0
	for _, r := range sample {
		d := r - devMean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(sample)-1))
	if std == 0 || !finite(std) {
		return 0
	}
	return mean / std * annualize
}

// tradeStats derives win rate and profit factor from SELL records.
// P&L per round trip = capital at exit minus capital deployed at entry.
func tradeStats(trades []types.Trade) (winRate float64, pf ProfitFactor, roundTrips int) {
	var wins int
	var grossProfit, grossLoss float64
	entryCapital := 0.0
	for _, t := range trades {
		switch t.Type {
		case types.TradeBuy:
			entryCapital = t.Capital
		case types.TradeSell:
			roundTrips++
			if t.ReturnPct > 0 {
				wins++
			}
			pnl := t.Capital - entryCapital
			if pnl >= 0 {
				grossProfit += pnl
			} else {
				grossLoss += -pnl
			}
		}
	}
	if roundTrips > 0 {
		winRate = float64(wins) / float64(roundTrips) * 100
	}
	switch {
	case grossLoss > 0:
		pf = ProfitFactor{Value: grossProfit / grossLoss}
	case grossProfit > 0:
		pf = ProfitFactor{Infinite: true}
	default:
		pf = ProfitFactor{}
	}
	return winRate, pf, roundTrips
}
