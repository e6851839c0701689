// Package persistence stores sweep reports and their trade ledgers in
// PostgreSQL. The CLI runs fine without a database; callers that have no
// connection string use the Noop persister.
package persistence

import (
	"context"
	"io"

	"github.com/algomatic/go-backtest/pkg/optimize"
)

// RunRecord describes one sweep run for the backtest_runs table.
type RunRecord struct {
	RunID    string
	Strategy string
	Symbol   string
	Interval string
	Tested   int
	Valid    int
	Filtered int
	// BestScore is nil when every evaluation was filtered.
	BestScore *float64
}

// Persister stores sweep outcomes. Implemented by Client (pgx) and Noop.
type Persister interface {
	// SaveRun upserts the run header row.
	SaveRun(ctx context.Context, run RunRecord) error

	// SaveReport stores the ranked evaluations of a sweep, keeping at
	// most topN rows (0 = all), and bulk-inserts the best evaluation's
	// trades. Returns (evaluation rows, trade rows) written.
	SaveReport(ctx context.Context, runID string, report *optimize.Report, topN int) (int, int, error)

	io.Closer
}

// Noop discards everything. Used when no database is configured.
type Noop struct{}

// SaveRun implements Persister.
func (Noop) SaveRun(context.Context, RunRecord) error { return nil }

// SaveReport implements Persister.
func (Noop) SaveReport(context.Context, string, *optimize.Report, int) (int, int, error) {
	return 0, 0, nil
}

// Close implements io.Closer.
func (Noop) Close() error { return nil }
