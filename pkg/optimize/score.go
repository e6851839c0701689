package optimize

import "github.com/algomatic/go-backtest/pkg/metrics"

// ScorePolicy folds a metric summary into one composite score in [0,100].
// Each component is rescaled, clipped to [0,100] and weighted. The default
// weights and scales are empirically tuned rather than derived, so they
// are configuration, not constants.
type ScorePolicy struct {
	ReturnWeight       float64 `yaml:"return_weight" json:"return_weight"`
	SharpeWeight       float64 `yaml:"sharpe_weight" json:"sharpe_weight"`
	CalmarWeight       float64 `yaml:"calmar_weight" json:"calmar_weight"`
	ProfitFactorWeight float64 `yaml:"profit_factor_weight" json:"profit_factor_weight"`
	WinRateWeight      float64 `yaml:"win_rate_weight" json:"win_rate_weight"`

	SharpeScale       float64 `yaml:"sharpe_scale" json:"sharpe_scale"`
	CalmarScale       float64 `yaml:"calmar_scale" json:"calmar_scale"`
	ProfitFactorScale float64 `yaml:"profit_factor_scale" json:"profit_factor_scale"`
}

// DefaultScorePolicy returns the tuned weights: return 35%, Sharpe 25%,
// Calmar 20%, profit factor 10%, win rate 10%.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		ReturnWeight:       0.35,
		SharpeWeight:       0.25,
		CalmarWeight:       0.20,
		ProfitFactorWeight: 0.10,
		WinRateWeight:      0.10,
		SharpeScale:        20,
		CalmarScale:        10,
		ProfitFactorScale:  20,
	}
}

func clip100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Score computes the composite score for a summary. An infinite profit
// factor saturates its component.
func (p ScorePolicy) Score(s *metrics.Summary) float64 {
	pf := 100.0
	if !s.ProfitFactor.Infinite {
		pf = clip100(s.ProfitFactor.Value * p.ProfitFactorScale)
	}
	return p.ReturnWeight*clip100(s.TotalReturnPct) +
		p.SharpeWeight*clip100(s.SharpeRatio*p.SharpeScale) +
		p.CalmarWeight*clip100(s.CalmarRatio*p.CalmarScale) +
		p.ProfitFactorWeight*pf +
		p.WinRateWeight*clip100(s.WinRatePct)
}
