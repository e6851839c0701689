package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/algomatic/go-backtest/pkg/types"
)

// Loader resolves a bar request through the cache layers: local file
// cache first, then Redis, then the market data API. Fetched bars are
// written back to every configured layer. Either cache may be nil.
type Loader struct {
	client *Client
	files  *FileCache
	redis  *RedisCache
	logger *slog.Logger
}

// NewLoader wires the layers together. The API client is required.
func NewLoader(client *Client, files *FileCache, redis *RedisCache, logger *slog.Logger) (*Loader, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: loader needs an API client", types.ErrInvalidParameter)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{client: client, files: files, redis: redis, logger: logger}, nil
}

// Bars returns validated bars for the request, consulting the caches
// before the network. Cache failures degrade to a fetch, never to an
// error.
func (l *Loader) Bars(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, error) {
	if l.files != nil {
		if bars, ok := l.files.Get(symbol, interval, start, end); ok {
			return bars, nil
		}
	}
	if l.redis != nil {
		bars, ok, err := l.redis.Get(ctx, symbol, interval, start, end)
		if err != nil {
			l.logger.Warn("redis cache unavailable", "err", err)
		} else if ok {
			l.backfillFiles(symbol, interval, start, end, bars)
			return bars, nil
		}
	}

	bars, err := l.client.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	l.backfillFiles(symbol, interval, start, end, bars)
	if l.redis != nil {
		if err := l.redis.Put(ctx, symbol, interval, start, end, bars); err != nil {
			l.logger.Warn("redis cache write failed", "err", err)
		}
	}
	return bars, nil
}

func (l *Loader) backfillFiles(symbol string, interval types.Interval, start, end time.Time, bars []types.Bar) {
	if l.files == nil {
		return
	}
	if err := l.files.Put(symbol, interval, start, end, bars); err != nil {
		l.logger.Warn("file cache write failed", "err", err)
	}
}
