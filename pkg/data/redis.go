package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/algomatic/go-backtest/pkg/types"
)

// RedisCache shares fetched bar series across processes. Entries expire
// after the TTL so a long-running sweep service re-fetches once a day,
// matching the file cache's staleness window.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis at addr. A zero ttl means DefaultMaxAge.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		rdb:    redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
		logger: logger,
	}
}

// Ping verifies the connection.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (rc *RedisCache) Close() error {
	return rc.rdb.Close()
}

func barsKey(symbol string, interval types.Interval, start, end time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d", symbol, interval, start.Unix(), end.Unix())
}

// Get returns the cached bars for the key, or ok=false on a miss. Cache
// errors other than a plain miss are returned so callers can log them
// and fall through to the next layer.
func (rc *RedisCache) Get(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, bool, error) {
	key := barsKey(symbol, interval, start, end)
	raw, err := rc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var bars []types.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		// A corrupt entry is dropped, not fatal.
		rc.logger.Warn("dropping corrupt redis entry", "key", key, "err", err)
		rc.rdb.Del(ctx, key)
		return nil, false, nil
	}
	rc.logger.Debug("redis cache hit", "key", key, "bars", len(bars))
	return bars, true, nil
}

// Put stores bars under the key with the cache TTL.
func (rc *RedisCache) Put(ctx context.Context, symbol string, interval types.Interval, start, end time.Time, bars []types.Bar) error {
	key := barsKey(symbol, interval, start, end)
	raw, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("encoding bars for %s: %w", key, err)
	}
	if err := rc.rdb.Set(ctx, key, raw, rc.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
