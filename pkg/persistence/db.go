package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algomatic/go-backtest/pkg/optimize"
	"github.com/algomatic/go-backtest/pkg/types"
)

// Client persists sweep outcomes through a pgx connection pool.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewClient opens a pool against connStr and verifies connectivity.
func NewClient(ctx context.Context, connStr string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info("database connection pool established", "max_conns", config.MaxConns)
	return &Client{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	c.pool.Close()
	c.logger.Info("database connection pool closed")
	return nil
}

// SaveRun upserts the header row for a sweep run.
func (c *Client) SaveRun(ctx context.Context, run RunRecord) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO backtest_runs
			(run_id, strategy, symbol, interval, tested_count, valid_count,
			 filtered_count, best_score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (run_id) DO UPDATE SET
			tested_count = EXCLUDED.tested_count,
			valid_count = EXCLUDED.valid_count,
			filtered_count = EXCLUDED.filtered_count,
			best_score = EXCLUDED.best_score,
			updated_at = now()`,
		run.RunID, run.Strategy, run.Symbol, run.Interval,
		run.Tested, run.Valid, run.Filtered, run.BestScore,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveReport stores the top ranked evaluations and the best evaluation's
// trade ledger in one transaction.
func (c *Client) SaveReport(ctx context.Context, runID string, report *optimize.Report, topN int) (int, int, error) {
	ranked := report.Ranked
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	if len(ranked) == 0 {
		return 0, 0, nil
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var bestID int64
	evalRows := 0
	for rank, ev := range ranked {
		overrides, err := json.Marshal(ev.Overrides)
		if err != nil {
			return 0, 0, fmt.Errorf("encoding overrides: %w", err)
		}
		summary, err := json.Marshal(ev.Summary)
		if err != nil {
			return 0, 0, fmt.Errorf("encoding summary: %w", err)
		}
		var id int64
		err = tx.QueryRow(ctx,
			`INSERT INTO backtest_results
				(run_id, rank, strategy, overrides, score, summary)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			runID, rank+1, report.Strategy, overrides, ev.Score, summary,
		).Scan(&id)
		if err != nil {
			return 0, 0, fmt.Errorf("inserting result rank %d: %w", rank+1, err)
		}
		if rank == 0 {
			bestID = id
		}
		evalRows++
	}

	tradeRows, err := saveTrades(ctx, tx, bestID, report.Best.Result.Trades)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing report transaction: %w", err)
	}
	c.logger.Info("saved sweep report",
		"run_id", runID, "results", evalRows, "trades", tradeRows)
	return evalRows, tradeRows, nil
}

// saveTrades bulk-inserts a trade ledger with COPY.
func saveTrades(ctx context.Context, tx pgx.Tx, resultID int64, trades []types.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	rows := make([][]interface{}, len(trades))
	for i, t := range trades {
		rows[i] = []interface{}{
			resultID, t.Timestamp, string(t.Type), t.Price,
			t.Shares, t.Capital, t.ReturnPct, t.Regime, t.Forced,
		}
	}
	count, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"backtest_trades"},
		[]string{
			"backtest_result_id", "executed_at", "trade_type", "price",
			"shares", "capital", "return_pct", "regime", "forced",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk inserting trades: %w", err)
	}
	return int(count), nil
}
