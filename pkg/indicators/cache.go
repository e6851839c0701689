package indicators

import (
	"fmt"
	"log/slog"
)

// Cache holds precomputed indicator series shared by a parameter sweep.
// EMAs are keyed by period, volatility ranks by (atr length, vol length).
// The cache is filled once before workers are dispatched and is read-only
// afterwards, so concurrent readers need no locking.
type Cache struct {
	emas     map[int][]float64
	volRanks map[string][]float64
}

// NewCache returns an empty indicator cache.
func NewCache() *Cache {
	return &Cache{
		emas:     make(map[int][]float64),
		volRanks: make(map[string][]float64),
	}
}

func volKey(atrLength, volLength int) string {
	return fmt.Sprintf("%d-%d", atrLength, volLength)
}

// PrecomputeEMAs fills the cache with one EMA series per period.
func (c *Cache) PrecomputeEMAs(closes []float64, periods []int, logger *slog.Logger) error {
	for _, p := range periods {
		if _, ok := c.emas[p]; ok {
			continue
		}
		series, err := EMA(closes, p)
		if err != nil {
			return fmt.Errorf("caching ema(%d): %w", p, err)
		}
		c.emas[p] = series
	}
	if logger != nil {
		logger.Debug("EMA cache filled", "periods", len(c.emas))
	}
	return nil
}

// PrecomputeVolRank fills the cache with the volatility percentile rank for
// one (atr length, vol length) pair.
func (c *Cache) PrecomputeVolRank(high, low, closes []float64, atrLength, volLength int, policy WarmupRankPolicy) error {
	key := volKey(atrLength, volLength)
	if _, ok := c.volRanks[key]; ok {
		return nil
	}
	natr, err := NormalizedATR(high, low, closes, atrLength)
	if err != nil {
		return fmt.Errorf("caching normalized atr(%d): %w", atrLength, err)
	}
	ranks, err := VolatilityRank(natr, volLength, policy)
	if err != nil {
		return fmt.Errorf("caching vol rank(%d,%d): %w", atrLength, volLength, err)
	}
	c.volRanks[key] = ranks
	return nil
}

// EMASeries returns the cached EMA for a period.
func (c *Cache) EMASeries(period int) ([]float64, bool) {
	s, ok := c.emas[period]
	return s, ok
}

// VolRank returns the cached volatility rank for an (atr, vol) length pair.
func (c *Cache) VolRank(atrLength, volLength int) ([]float64, bool) {
	s, ok := c.volRanks[volKey(atrLength, volLength)]
	return s, ok
}
