package strategy

import (
	"fmt"

	"github.com/algomatic/go-backtest/pkg/indicators"
	"github.com/algomatic/go-backtest/pkg/types"
)

// Kind tags the concrete strategy variants. Dispatch is a type/kind
// switch, not inheritance: every variant carries its own parameter record
// and the generator constructor pattern-matches on the kind.
type Kind int

const (
	KindAdaptiveEMAV1 Kind = iota
	KindAdaptiveEMAV2
	KindAdaptiveEMAV21
	KindAdaptiveEMAVolV1
	KindAdaptiveDonchianV1
)

// String returns the registry name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdaptiveEMAV1:
		return "adaptive_ema_v1"
	case KindAdaptiveEMAV2:
		return "adaptive_ema_v2"
	case KindAdaptiveEMAV21:
		return "adaptive_ema_v2_1"
	case KindAdaptiveEMAVolV1:
		return "adaptive_ema_vol_v1"
	case KindAdaptiveDonchianV1:
		return "adaptive_donchian_v1"
	}
	return "unknown"
}

// Params is the validated, immutable parameter record of one variant.
// Validate must be called (and pass) before a generator is built; it fails
// fast with ErrInvalidParameter and never clamps.
type Params interface {
	Kind() Kind
	Validate() error
	// Warmup is the bar index before which signal evaluation is
	// suppressed. It is at least the largest indicator period in use;
	// whether a settle buffer is added on top is up to the variant.
	Warmup() int
	// apply sets one named parameter from a flat override mapping.
	apply(key string, value float64) error
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func unknownKey(kind Kind, key string) error {
	return invalidf("strategy %s has no parameter %q", kind, key)
}

// settleBuffer is the extra warmup the adaptive and breakout variants add
// on top of their longest indicator period.
const settleBuffer = 10

// ---------------------------------------------------------------------------
// adaptive_ema_v1: three-regime EMA pairs selected by volatility percentile
// ---------------------------------------------------------------------------

// AdaptiveEMAV1Params configures the three-regime EMA crossover variant.
type AdaptiveEMAV1Params struct {
	Regimes    RegimeTable
	ATRLength  int
	VolLength  int
	LowPct     float64
	HighPct    float64
	WarmupRank indicators.WarmupRankPolicy
}

// DefaultAdaptiveEMAV1 returns the tuned defaults for the variant.
func DefaultAdaptiveEMAV1() *AdaptiveEMAV1Params {
	return &AdaptiveEMAV1Params{
		Regimes: RegimeTable{
			Low:    EMAPair{Fast: 12, Slow: 80},
			Medium: EMAPair{Fast: 25, Slow: 108},
			High:   EMAPair{Fast: 38, Slow: 120},
		},
		ATRLength:  14,
		VolLength:  63,
		LowPct:     25,
		HighPct:    73,
		WarmupRank: indicators.WarmupRankMedium,
	}
}

// Kind implements Params.
func (p *AdaptiveEMAV1Params) Kind() Kind { return KindAdaptiveEMAV1 }

// Validate implements Params.
func (p *AdaptiveEMAV1Params) Validate() error {
	pairs := []struct {
		name string
		pair EMAPair
	}{
		{"low", p.Regimes.Low},
		{"medium", p.Regimes.Medium},
		{"high", p.Regimes.High},
	}
	for _, rp := range pairs {
		if rp.pair.Fast < 1 || rp.pair.Slow < 1 {
			return invalidf("%s regime EMA periods must be >= 1, got %d/%d", rp.name, rp.pair.Fast, rp.pair.Slow)
		}
		if rp.pair.Fast >= rp.pair.Slow {
			return invalidf("%s regime fast EMA %d must be < slow EMA %d", rp.name, rp.pair.Fast, rp.pair.Slow)
		}
	}
	if p.ATRLength < 1 {
		return invalidf("atr_length must be >= 1, got %d", p.ATRLength)
	}
	if p.VolLength < 1 {
		return invalidf("volatility_length must be >= 1, got %d", p.VolLength)
	}
	if p.LowPct >= p.HighPct {
		return invalidf("low_vol_percentile %.1f must be < high_vol_percentile %.1f", p.LowPct, p.HighPct)
	}
	return nil
}

// Warmup implements Params.
func (p *AdaptiveEMAV1Params) Warmup() int {
	w := p.ATRLength
	if p.VolLength > w {
		w = p.VolLength
	}
	for _, n := range p.Regimes.Periods() {
		if n > w {
			w = n
		}
	}
	return w
}

func (p *AdaptiveEMAV1Params) apply(key string, v float64) error {
	switch key {
	case "fast_length_low":
		p.Regimes.Low.Fast = int(v)
	case "slow_length_low":
		p.Regimes.Low.Slow = int(v)
	case "fast_length_med":
		p.Regimes.Medium.Fast = int(v)
	case "slow_length_med":
		p.Regimes.Medium.Slow = int(v)
	case "fast_length_high":
		p.Regimes.High.Fast = int(v)
	case "slow_length_high":
		p.Regimes.High.Slow = int(v)
	case "atr_length":
		p.ATRLength = int(v)
	case "volatility_length":
		p.VolLength = int(v)
	case "low_vol_percentile":
		p.LowPct = v
	case "high_vol_percentile":
		p.HighPct = v
	default:
		return unknownKey(p.Kind(), key)
	}
	return nil
}

// ---------------------------------------------------------------------------
// adaptive_ema_v2 family: base pair scaled in the high-volatility regime
// ---------------------------------------------------------------------------

// AdaptiveEMAV2Params configures the two-regime adaptive-period variant.
// The v2.1 and vol_v1 variants embed it and layer extra entry filters.
type AdaptiveEMAV2Params struct {
	Base         EMAPair
	FastMult     float64
	SlowMult     float64
	ATRLength    int
	VolThreshold float64
	VolLength    int
	WarmupRank   indicators.WarmupRankPolicy
}

// DefaultAdaptiveEMAV2 returns the tuned defaults for the variant.
func DefaultAdaptiveEMAV2() *AdaptiveEMAV2Params {
	return &AdaptiveEMAV2Params{
		Base:         EMAPair{Fast: 15, Slow: 18},
		FastMult:     2.0,
		SlowMult:     1.4,
		ATRLength:    12,
		VolThreshold: 65,
		VolLength:    50,
		WarmupRank:   indicators.WarmupRankNaN,
	}
}

// Kind implements Params.
func (p *AdaptiveEMAV2Params) Kind() Kind { return KindAdaptiveEMAV2 }

func (p *AdaptiveEMAV2Params) validateBase() error {
	if p.Base.Fast < 1 || p.Base.Slow < 1 {
		return invalidf("base EMA periods must be >= 1, got %d/%d", p.Base.Fast, p.Base.Slow)
	}
	if p.Base.Fast >= p.Base.Slow {
		return invalidf("fast_base %d must be < slow_base %d", p.Base.Fast, p.Base.Slow)
	}
	if p.FastMult < 1.0 || p.SlowMult < 1.0 {
		return invalidf("multipliers must be >= 1.0, got fast=%.2f slow=%.2f", p.FastMult, p.SlowMult)
	}
	if p.ATRLength < 1 {
		return invalidf("atr_length must be >= 1, got %d", p.ATRLength)
	}
	if p.VolLength < 1 {
		return invalidf("vol_length must be >= 1, got %d", p.VolLength)
	}
	if p.VolThreshold < 0 || p.VolThreshold > 100 {
		return invalidf("vol_threshold %.1f must be within [0,100]", p.VolThreshold)
	}
	return nil
}

// Validate implements Params.
func (p *AdaptiveEMAV2Params) Validate() error { return p.validateBase() }

// Warmup implements Params.
func (p *AdaptiveEMAV2Params) Warmup() int {
	w := p.ATRLength
	if p.VolLength > w {
		w = p.VolLength
	}
	scaled := ScaledPair(p.Base, p.FastMult, p.SlowMult)
	if scaled.Slow > w {
		w = scaled.Slow
	}
	return w + settleBuffer
}

func (p *AdaptiveEMAV2Params) apply(key string, v float64) error {
	switch key {
	case "fast_base":
		p.Base.Fast = int(v)
	case "slow_base":
		p.Base.Slow = int(v)
	case "fast_mult":
		p.FastMult = v
	case "slow_mult":
		p.SlowMult = v
	case "atr_length":
		p.ATRLength = int(v)
	case "vol_threshold":
		p.VolThreshold = v
	case "vol_length":
		p.VolLength = int(v)
	default:
		return unknownKey(p.Kind(), key)
	}
	return nil
}

// AdaptiveEMAV21Params is the v2 variant with an ADX trend-strength filter
// on the entry side only.
type AdaptiveEMAV21Params struct {
	AdaptiveEMAV2Params
	ADXLength    int
	ADXThreshold float64
}

// DefaultAdaptiveEMAV21 returns the tuned defaults for the variant.
func DefaultAdaptiveEMAV21() *AdaptiveEMAV21Params {
	return &AdaptiveEMAV21Params{
		AdaptiveEMAV2Params: AdaptiveEMAV2Params{
			Base:         EMAPair{Fast: 9, Slow: 21},
			FastMult:     1.8,
			SlowMult:     1.8,
			ATRLength:    10,
			VolThreshold: 60,
			VolLength:    50,
			WarmupRank:   indicators.WarmupRankNaN,
		},
		ADXLength:    12,
		ADXThreshold: 12,
	}
}

// Kind implements Params.
func (p *AdaptiveEMAV21Params) Kind() Kind { return KindAdaptiveEMAV21 }

// Validate implements Params.
func (p *AdaptiveEMAV21Params) Validate() error {
	if err := p.validateBase(); err != nil {
		return err
	}
	if p.ADXLength < 1 {
		return invalidf("adx_length must be >= 1, got %d", p.ADXLength)
	}
	if p.ADXThreshold < 0 {
		return invalidf("adx_threshold must be >= 0, got %.2f", p.ADXThreshold)
	}
	return nil
}

// Warmup implements Params.
func (p *AdaptiveEMAV21Params) Warmup() int {
	w := p.AdaptiveEMAV2Params.Warmup() - settleBuffer
	if p.ADXLength > w {
		w = p.ADXLength
	}
	return w + settleBuffer
}

func (p *AdaptiveEMAV21Params) apply(key string, v float64) error {
	switch key {
	case "adx_length":
		p.ADXLength = int(v)
	case "adx_threshold":
		p.ADXThreshold = v
	default:
		if err := p.AdaptiveEMAV2Params.apply(key, v); err != nil {
			return unknownKey(p.Kind(), key)
		}
	}
	return nil
}

// AdaptiveEMAVolV1Params is the v2 variant with ADX, RSI-band and
// volume-confirmation filters on the entry side only.
type AdaptiveEMAVolV1Params struct {
	AdaptiveEMAV2Params
	ADXLength      int
	ADXThreshold   float64
	RSILength      int
	RSITrendingMin float64
	RSITrendingMax float64
	VolumeMALength int
}

// DefaultAdaptiveEMAVolV1 returns the tuned defaults for the variant.
func DefaultAdaptiveEMAVolV1() *AdaptiveEMAVolV1Params {
	return &AdaptiveEMAVolV1Params{
		AdaptiveEMAV2Params: AdaptiveEMAV2Params{
			Base:         EMAPair{Fast: 8, Slow: 12},
			FastMult:     1.6,
			SlowMult:     1.2,
			ATRLength:    12,
			VolThreshold: 60,
			VolLength:    50,
			WarmupRank:   indicators.WarmupRankNaN,
		},
		ADXLength:      7,
		ADXThreshold:   8,
		RSILength:      14,
		RSITrendingMin: 35,
		RSITrendingMax: 75,
		VolumeMALength: 20,
	}
}

// Kind implements Params.
func (p *AdaptiveEMAVolV1Params) Kind() Kind { return KindAdaptiveEMAVolV1 }

// Validate implements Params.
func (p *AdaptiveEMAVolV1Params) Validate() error {
	if err := p.validateBase(); err != nil {
		return err
	}
	if p.ADXLength < 1 {
		return invalidf("adx_length must be >= 1, got %d", p.ADXLength)
	}
	if p.ADXThreshold < 0 {
		return invalidf("adx_threshold must be >= 0, got %.2f", p.ADXThreshold)
	}
	if p.RSILength < 1 {
		return invalidf("rsi_length must be >= 1, got %d", p.RSILength)
	}
	if p.RSITrendingMin >= p.RSITrendingMax {
		return invalidf("rsi_trending_min %.1f must be < rsi_trending_max %.1f", p.RSITrendingMin, p.RSITrendingMax)
	}
	if p.VolumeMALength < 1 {
		return invalidf("volume_ma_length must be >= 1, got %d", p.VolumeMALength)
	}
	return nil
}

// Warmup implements Params.
func (p *AdaptiveEMAVolV1Params) Warmup() int {
	w := p.AdaptiveEMAV2Params.Warmup() - settleBuffer
	for _, n := range []int{p.ADXLength, p.RSILength, p.VolumeMALength} {
		if n > w {
			w = n
		}
	}
	return w + settleBuffer
}

func (p *AdaptiveEMAVolV1Params) apply(key string, v float64) error {
	switch key {
	case "adx_length":
		p.ADXLength = int(v)
	case "adx_threshold":
		p.ADXThreshold = v
	case "rsi_length":
		p.RSILength = int(v)
	case "rsi_trending_min":
		p.RSITrendingMin = v
	case "rsi_trending_max":
		p.RSITrendingMax = v
	case "volume_ma_length":
		p.VolumeMALength = int(v)
	default:
		if err := p.AdaptiveEMAV2Params.apply(key, v); err != nil {
			return unknownKey(p.Kind(), key)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// adaptive_donchian_v1: channel breakout with ATR buffer and ADX filter
// ---------------------------------------------------------------------------

// AdaptiveDonchianV1Params configures the Donchian breakout variant.
type AdaptiveDonchianV1Params struct {
	DonchianLength int
	ATRLength      int
	ATRMultiplier  float64
	ADXLength      int
	ADXThreshold   float64
}

// DefaultAdaptiveDonchianV1 returns the tuned defaults for the variant.
func DefaultAdaptiveDonchianV1() *AdaptiveDonchianV1Params {
	return &AdaptiveDonchianV1Params{
		DonchianLength: 20,
		ATRLength:      14,
		ATRMultiplier:  0,
		ADXLength:      14,
		ADXThreshold:   0,
	}
}

// Kind implements Params.
func (p *AdaptiveDonchianV1Params) Kind() Kind { return KindAdaptiveDonchianV1 }

// Validate implements Params.
func (p *AdaptiveDonchianV1Params) Validate() error {
	if p.DonchianLength < 5 {
		return invalidf("donchian_length must be >= 5, got %d", p.DonchianLength)
	}
	if p.ATRLength < 5 {
		return invalidf("atr_length must be >= 5, got %d", p.ATRLength)
	}
	if p.ATRMultiplier < 0 {
		return invalidf("atr_multiplier must be >= 0, got %.2f", p.ATRMultiplier)
	}
	if p.ADXLength < 1 {
		return invalidf("adx_length must be >= 1, got %d", p.ADXLength)
	}
	if p.ADXThreshold < 0 {
		return invalidf("adx_threshold must be >= 0, got %.2f", p.ADXThreshold)
	}
	return nil
}

// Warmup implements Params.
func (p *AdaptiveDonchianV1Params) Warmup() int {
	w := p.DonchianLength
	if p.ATRLength > w {
		w = p.ATRLength
	}
	if p.ADXLength > w {
		w = p.ADXLength
	}
	return w + settleBuffer
}

func (p *AdaptiveDonchianV1Params) apply(key string, v float64) error {
	switch key {
	case "donchian_length":
		p.DonchianLength = int(v)
	case "atr_length":
		p.ATRLength = int(v)
	case "atr_multiplier":
		p.ATRMultiplier = v
	case "adx_length":
		p.ADXLength = int(v)
	case "adx_threshold":
		p.ADXThreshold = v
	default:
		return unknownKey(p.Kind(), key)
	}
	return nil
}

// ApplyOverrides sets named parameters on a record from a flat mapping.
// Unknown keys fail with a descriptive error naming the key; nothing is
// defaulted or clamped silently. Validate is re-run after the last
// override.
func ApplyOverrides(p Params, overrides map[string]float64) error {
	for key, v := range overrides {
		if err := p.apply(key, v); err != nil {
			return err
		}
	}
	return p.Validate()
}
