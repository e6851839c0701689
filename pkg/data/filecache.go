package data

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/algomatic/go-backtest/pkg/types"
)

// DefaultMaxAge is how long a cached bar file stays fresh.
const DefaultMaxAge = 24 * time.Hour

// FileCache stores bar series as CSV files keyed by
// (symbol, interval, start, end). Files older than the max age are
// treated as misses and re-fetched by the caller.
type FileCache struct {
	dir    string
	maxAge time.Duration
	logger *slog.Logger

	// now is swapped out by tests to control staleness.
	now func() time.Time
}

// NewFileCache creates the cache directory if needed. A zero maxAge
// means DefaultMaxAge.
func NewFileCache(dir string, maxAge time.Duration, logger *slog.Logger) (*FileCache, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FileCache{dir: dir, maxAge: maxAge, logger: logger, now: time.Now}, nil
}

func (fc *FileCache) path(symbol string, interval types.Interval, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s_%d_%d.csv", symbol, interval, start.Unix(), end.Unix())
	return filepath.Join(fc.dir, name)
}

// Get returns the cached bars for the key, or ok=false on a miss or a
// stale file. A corrupt cache file is deleted and reported as a miss.
func (fc *FileCache) Get(symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, bool) {
	p := fc.path(symbol, interval, start, end)
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if fc.now().Sub(info.ModTime()) > fc.maxAge {
		fc.logger.Debug("cache file stale", "path", p, "age", fc.now().Sub(info.ModTime()))
		return nil, false
	}
	bars, err := LoadCSVFile(p)
	if err != nil {
		fc.logger.Warn("dropping corrupt cache file", "path", p, "err", err)
		os.Remove(p)
		return nil, false
	}
	fc.logger.Debug("cache hit", "path", p, "bars", len(bars))
	return bars, true
}

// Put stores bars under the key.
func (fc *FileCache) Put(symbol string, interval types.Interval, start, end time.Time, bars []types.Bar) error {
	p := fc.path(symbol, interval, start, end)
	if err := SaveCSVFile(p, bars); err != nil {
		return fmt.Errorf("caching bars to %s: %w", p, err)
	}
	return nil
}
