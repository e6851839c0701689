// Package types defines the core data structures shared by the backtest
// engine, the strategy definitions, and the optimization search.
//
//   - Bar = one OHLCV row, immutable once loaded
//   - Trade = a single BUY or SELL execution record
//   - EquityPoint = one mark-to-market sample of the equity curve
//   - Signal / Regime = discrete per-bar decisions
package types

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV bar.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Signal is the discrete per-bar decision emitted by a signal generator.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Regime is a discrete volatility bucket used to select indicator periods.
type Regime int

const (
	RegimeLow Regime = iota
	RegimeMedium
	RegimeHigh
)

// String returns the regime name.
func (r Regime) String() string {
	switch r {
	case RegimeLow:
		return "LOW"
	case RegimeHigh:
		return "HIGH"
	default:
		return "MEDIUM"
	}
}

// TradeType distinguishes entries from exits in the trade ledger.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Trade is an immutable record of a completed BUY or SELL execution.
// ReturnPct is only set on SELL records: (exit-entry)/entry * 100.
// Forced marks the end-of-run liquidation of a still-open position.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Type      TradeType `json:"type"`
	Price     float64   `json:"price"`
	Shares    float64   `json:"shares"`
	Capital   float64   `json:"capital"`
	ReturnPct float64   `json:"return_pct,omitempty"`
	Regime    string    `json:"regime,omitempty"`
	Forced    bool      `json:"forced,omitempty"`
}

// EquityPoint is one sample of the mark-to-market equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Columns holds the per-field series of a bar slice in index order.
// Indicators operate on these flat slices rather than on []Bar.
type Columns struct {
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// NewColumns splits bars into per-field series.
func NewColumns(bars []Bar) Columns {
	c := Columns{
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		c.High[i] = b.High
		c.Low[i] = b.Low
		c.Close[i] = b.Close
		c.Volume[i] = b.Volume
	}
	return c
}

// Position is the single open position of a strategy run.
// Shares = capital deployed at entry / entry price (full allocation).
type Position struct {
	EntryPrice float64
	EntryIndex int
	EntryTime  time.Time
	Shares     float64
	Regime     Regime
}

// Interval is the bar frequency of a series. It determines the
// annualization factor applied to Sharpe and Sortino ratios.
type Interval string

const (
	Interval1h Interval = "1h"
	Interval4h Interval = "4h"
	Interval1d Interval = "1d"
)

// ParseInterval returns the Interval for a string, or an error for
// anything it does not recognize.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Interval1h, Interval4h, Interval1d:
		return Interval(s), nil
	}
	return "", fmt.Errorf("%w: unknown interval %q (want 1h, 4h or 1d)", ErrInvalidParameter, s)
}

// AnnualizationFactor returns the number of bars per year for the
// interval. Roughly 6500 trading hours per year, 252 trading days.
func (iv Interval) AnnualizationFactor() float64 {
	switch iv {
	case Interval1h:
		return 6500
	case Interval4h:
		return 1625
	case Interval1d:
		return 252
	}
	return 252
}
