package types

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds for the failure taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidParameter marks a strategy-parameter invariant violated at
	// construction (fast >= slow, percentile order, negative threshold).
	// Never recoverable; the run must not start.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData marks a bar series shorter than the strategy's
	// warmup requirement. The engine still returns a degenerate zero-trade
	// result; sweeps count the combination as filtered.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNumericDegenerate marks a NaN or Inf reaching a value with no
	// defined fallback (zero entry price, NaN final equity). Fatal for the
	// single evaluation only.
	ErrNumericDegenerate = errors.New("numeric degenerate")

	// ErrDataIntegrity marks a malformed bar series at the ingestion
	// boundary. Fatal at load time, before any simulation starts.
	ErrDataIntegrity = errors.New("data integrity")
)

// ValidateBars checks a bar series for the ingestion-boundary contract:
// strictly increasing timestamps, no duplicates, sane OHLC fields.
func ValidateBars(bars []Bar) error {
	var prev time.Time
	for i, b := range bars {
		if b.Timestamp.IsZero() {
			return fmt.Errorf("%w: bar %d has zero timestamp", ErrDataIntegrity, i)
		}
		if i > 0 && !b.Timestamp.After(prev) {
			return fmt.Errorf("%w: bar %d timestamp %s not after previous %s",
				ErrDataIntegrity, i, b.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: bar %d high %.6f below low %.6f", ErrDataIntegrity, i, b.High, b.Low)
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("%w: bar %d has non-positive OHLC", ErrDataIntegrity, i)
		}
		prev = b.Timestamp
	}
	return nil
}
