// Command backtest runs rule-based strategy backtests, parameter sweeps
// and walk-forward validation from the command line.
//
// Usage:
//
//	backtest run --strategy adaptive_ema_v2 --symbol AAPL --interval 1h \
//	    --start 2024-01-01 --end 2024-06-01
//
//	backtest sweep --spec sweeps/adaptive_ema_v2.yaml --symbol AAPL \
//	    --start 2024-01-01 --end 2024-06-01 --listen :8090
//
//	backtest walkforward --spec sweeps/adaptive_ema_v2.yaml --symbol AAPL \
//	    --start 2023-01-01 --end 2024-06-01 --train-bars 1500 --test-bars 500
//
//	backtest list
//
// Bars come from a local CSV (--csv) or from the market data API with
// file and Redis caching in front of it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/algomatic/go-backtest/pkg/api"
	"github.com/algomatic/go-backtest/pkg/config"
	"github.com/algomatic/go-backtest/pkg/data"
	"github.com/algomatic/go-backtest/pkg/engine"
	"github.com/algomatic/go-backtest/pkg/metrics"
	"github.com/algomatic/go-backtest/pkg/optimize"
	"github.com/algomatic/go-backtest/pkg/persistence"
	"github.com/algomatic/go-backtest/pkg/runtracker"
	"github.com/algomatic/go-backtest/pkg/strategy"
	"github.com/algomatic/go-backtest/pkg/types"
)

const version = "1.0.0"

func main() {
	// A missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "sweep":
		err = cmdSweep(os.Args[2:])
	case "walkforward":
		err = cmdWalkForward(os.Args[2:])
	case "list":
		err = cmdList()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: backtest <command> [flags]

Commands:
  run          Run a single backtest and print its metrics
  sweep        Sweep a parameter grid from a YAML spec
  walkforward  Walk-forward validation of a sweep spec
  list         List registered strategies
  version      Print the version`)
}

// dataFlags are the bar-source flags shared by run, sweep and walkforward.
type dataFlags struct {
	configPath string
	csvFile    string
	symbol     string
	interval   string
	startDate  string
	endDate    string
}

func (d *dataFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.configPath, "config", envOrDefault("BACKTEST_CONFIG", ""), "Path to JSON config file")
	fs.StringVar(&d.csvFile, "csv", "", "Path to a local CSV bar file (bypasses the data API)")
	fs.StringVar(&d.symbol, "symbol", "", "Ticker symbol (e.g. AAPL)")
	fs.StringVar(&d.interval, "interval", "", "Bar interval: 1h, 4h, 1d (default 1h)")
	fs.StringVar(&d.startDate, "start", "", "Start date (e.g. 2024-01-01)")
	fs.StringVar(&d.endDate, "end", "", "End date (e.g. 2024-06-01)")
}

// resolveInterval applies the precedence flag > spec > default.
func (d *dataFlags) resolveInterval(fromSpec string) (types.Interval, error) {
	name := d.interval
	if name == "" {
		name = fromSpec
	}
	if name == "" {
		name = "1h"
	}
	return types.ParseInterval(name)
}

func (d *dataFlags) resolveSymbol(fromSpec string) (string, error) {
	if d.symbol != "" {
		return d.symbol, nil
	}
	if fromSpec != "" {
		return fromSpec, nil
	}
	if d.csvFile != "" {
		return "local", nil
	}
	return "", fmt.Errorf("--symbol is required")
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var df dataFlags
	df.register(fs)
	strategyName := fs.String("strategy", "", "Strategy name (see `backtest list`)")
	overrideList := fs.String("set", "", "Parameter overrides, e.g. fast_base=10,slow_base=30")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(df.configPath)
	if err != nil {
		return err
	}

	if *strategyName == "" {
		return fmt.Errorf("--strategy is required")
	}
	overrides, err := parseOverrides(*overrideList)
	if err != nil {
		return err
	}
	params, err := strategy.ParamsWith(*strategyName, overrides)
	if err != nil {
		return err
	}

	interval, err := df.resolveInterval("")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	bars, cleanup, err := loadBars(ctx, cfg, logger, df, interval)
	if err != nil {
		return err
	}
	defer cleanup()

	gen, err := strategy.New(params, bars, nil)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg.Service.InitialCapital, logger)
	if err != nil {
		return err
	}
	result, err := eng.Run(bars, gen)
	if err != nil {
		return err
	}
	summary, err := metrics.Compute(result.Equity, result.Trades, bars, interval)
	if err != nil {
		return err
	}

	logger.Info("backtest finished",
		"strategy", *strategyName,
		"bars", len(bars),
		"round_trips", result.RoundTrips(),
		"final_capital", result.FinalCapital,
	)
	return printJSON(struct {
		Strategy string           `json:"strategy"`
		Summary  *metrics.Summary `json:"summary"`
		Trades   []types.Trade    `json:"trades"`
	}{*strategyName, summary, result.Trades})
}

// ---------------------------------------------------------------------------
// sweep
// ---------------------------------------------------------------------------

func cmdSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	var df dataFlags
	df.register(fs)
	specPath := fs.String("spec", "", "Path to the YAML sweep spec")
	topN := fs.Int("top", 10, "How many ranked evaluations to print and persist (0 = all)")
	listenAddr := fs.String("listen", "", "Serve the monitoring API on this address while sweeping (e.g. :8090)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(df.configPath)
	if err != nil {
		return err
	}

	if *specPath == "" {
		return fmt.Errorf("--spec is required")
	}
	spec, err := optimize.LoadSweepSpec(*specPath)
	if err != nil {
		return err
	}
	grid, err := spec.GridWithFixed()
	if err != nil {
		return err
	}

	symbol, err := df.resolveSymbol(spec.Symbol)
	if err != nil {
		return err
	}
	interval, err := df.resolveInterval(spec.Interval)
	if err != nil {
		return err
	}
	df.symbol = symbol

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	bars, cleanup, err := loadBars(ctx, cfg, logger, df, interval)
	if err != nil {
		return err
	}
	defer cleanup()

	sweeper := newSweeper(cfg, logger, interval, spec)

	tracker := runtracker.NewTracker(logger, version)
	runID := tracker.StartSweep(spec.Strategy, symbol, string(interval), len(grid))
	sweeper.OnEvaluation = func(valid bool, score float64) {
		tracker.RecordEvaluation(runID, valid, score)
	}

	if *listenAddr != "" {
		srv := api.NewServer(tracker, logger)
		mux := http.NewServeMux()
		srv.RegisterRoutes(mux)
		go func() {
			logger.Info("monitoring API listening", "addr", *listenAddr)
			if err := http.ListenAndServe(*listenAddr, mux); err != nil {
				logger.Warn("monitoring API stopped", "error", err)
			}
		}()
	}

	report, err := sweeper.Run(ctx, bars, spec.Strategy, grid)
	if err != nil {
		tracker.FailSweep(runID, err.Error())
		return err
	}

	var bestScore *float64
	if report.Best != nil {
		s := report.Best.Score
		bestScore = &s
	}
	tracker.CompleteSweep(runID, report.Tested, report.Valid, report.Filtered, bestScore)

	if err := persistReport(ctx, cfg, logger, runID, symbol, interval, report, *topN); err != nil {
		return err
	}

	ranked := report.Ranked
	if *topN > 0 && len(ranked) > *topN {
		ranked = ranked[:*topN]
	}
	return printJSON(struct {
		RunID    string                 `json:"run_id"`
		Strategy string                 `json:"strategy"`
		Symbol   string                 `json:"symbol"`
		Tested   int                    `json:"tested_count"`
		Valid    int                    `json:"valid_count"`
		Filtered int                    `json:"filtered_count"`
		Best     *optimize.Evaluation   `json:"best"`
		Ranked   []*optimize.Evaluation `json:"ranked"`
	}{runID, report.Strategy, symbol, report.Tested, report.Valid, report.Filtered, report.Best, ranked})
}

// ---------------------------------------------------------------------------
// walkforward
// ---------------------------------------------------------------------------

func cmdWalkForward(args []string) error {
	fs := flag.NewFlagSet("walkforward", flag.ExitOnError)
	var df dataFlags
	df.register(fs)
	specPath := fs.String("spec", "", "Path to the YAML sweep spec")
	trainBars := fs.Int("train-bars", 1500, "Bars per training window")
	testBars := fs.Int("test-bars", 500, "Bars per test window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(df.configPath)
	if err != nil {
		return err
	}

	if *specPath == "" {
		return fmt.Errorf("--spec is required")
	}
	spec, err := optimize.LoadSweepSpec(*specPath)
	if err != nil {
		return err
	}
	grid, err := spec.GridWithFixed()
	if err != nil {
		return err
	}

	symbol, err := df.resolveSymbol(spec.Symbol)
	if err != nil {
		return err
	}
	interval, err := df.resolveInterval(spec.Interval)
	if err != nil {
		return err
	}
	df.symbol = symbol

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
	defer cancel()

	bars, cleanup, err := loadBars(ctx, cfg, logger, df, interval)
	if err != nil {
		return err
	}
	defer cleanup()

	sweeper := newSweeper(cfg, logger, interval, spec)
	report, err := sweeper.WalkForward(ctx, bars, spec.Strategy, grid, *trainBars, *testBars)
	if err != nil {
		return err
	}
	return printJSON(report)
}

// ---------------------------------------------------------------------------
// list
// ---------------------------------------------------------------------------

func cmdList() error {
	names := strategy.Names()
	fmt.Printf("%-24s %s\n", "Name", "Default parameters")
	fmt.Println(strings.Repeat("-", 72))
	for _, name := range names {
		params, err := strategy.ParamsFor(name)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %s\n", name, raw)
	}
	fmt.Printf("\nTotal: %d strategies\n", len(names))
	return nil
}

// ---------------------------------------------------------------------------
// Wiring helpers
// ---------------------------------------------------------------------------

// setup loads configuration and builds the logger every command shares.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Service.LogLevel),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func newSweeper(cfg *config.Config, logger *slog.Logger, interval types.Interval, spec *optimize.SweepSpec) *optimize.Sweeper {
	sweeper := optimize.NewSweeper(interval, logger)
	sweeper.InitialCapital = cfg.Service.InitialCapital
	if spec.InitialCapital > 0 {
		sweeper.InitialCapital = spec.InitialCapital
	}
	if spec.Score != nil {
		sweeper.Policy = *spec.Score
	}
	if spec.Filters != nil {
		sweeper.Filters = *spec.Filters
	}
	sweeper.Workers = cfg.Service.Workers
	return sweeper
}

// loadBars returns the bar series for the requested source plus a cleanup
// for whatever connections the source opened.
func loadBars(ctx context.Context, cfg *config.Config, logger *slog.Logger, df dataFlags, interval types.Interval) ([]types.Bar, func(), error) {
	noop := func() {}

	if df.csvFile != "" {
		bars, err := data.LoadCSVFile(df.csvFile)
		if err != nil {
			return nil, noop, fmt.Errorf("loading CSV: %w", err)
		}
		logger.Info("loaded bars from CSV", "bars", len(bars), "file", df.csvFile)
		return bars, noop, nil
	}

	if df.symbol == "" {
		return nil, noop, fmt.Errorf("--symbol is required when no --csv is given")
	}
	if df.startDate == "" || df.endDate == "" {
		return nil, noop, fmt.Errorf("--start and --end are required when fetching from the data API")
	}
	start, err := parseDate(df.startDate)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := parseDate(df.endDate)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid --end: %w", err)
	}

	client := data.NewClient(cfg.Data.BaseURL, &data.ClientConfig{Logger: logger})

	files, err := data.NewFileCache(cfg.Data.CacheDir, 0, logger)
	if err != nil {
		return nil, noop, err
	}

	var redisCache *data.RedisCache
	cleanup := noop
	if cfg.Redis.Enabled {
		redisCache = data.NewRedisCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, 0, logger)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, continuing without it", "error", err)
			redisCache.Close()
			redisCache = nil
		} else {
			cleanup = func() { redisCache.Close() }
		}
	}

	loader, err := data.NewLoader(client, files, redisCache, logger)
	if err != nil {
		cleanup()
		return nil, noop, err
	}

	bars, err := loader.Bars(ctx, df.symbol, interval, start, end)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	logger.Info("loaded bars",
		"bars", len(bars), "symbol", df.symbol,
		"interval", string(interval),
	)
	return bars, cleanup, nil
}

// persistReport stores the sweep outcome when a database is configured.
func persistReport(ctx context.Context, cfg *config.Config, logger *slog.Logger, runID, symbol string, interval types.Interval, report *optimize.Report, topN int) error {
	var store persistence.Persister = persistence.Noop{}
	if cfg.Database.Enabled {
		client, err := persistence.NewClient(ctx, cfg.Database.ConnString(), logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		store = client
	}
	defer store.Close()

	var bestScore *float64
	if report.Best != nil {
		s := report.Best.Score
		bestScore = &s
	}
	record := persistence.RunRecord{
		RunID:     runID,
		Strategy:  report.Strategy,
		Symbol:    symbol,
		Interval:  string(interval),
		Tested:    report.Tested,
		Valid:     report.Valid,
		Filtered:  report.Filtered,
		BestScore: bestScore,
	}
	if err := store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	rows, trades, err := store.SaveReport(ctx, runID, report, topN)
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	if cfg.Database.Enabled {
		logger.Info("sweep persisted", "run_id", runID, "result_rows", rows, "trade_rows", trades)
	}
	return nil
}

// parseOverrides turns "fast_base=10,slow_base=30" into a map.
func parseOverrides(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	overrides := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		key, val, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", pair)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", pair, err)
		}
		overrides[key] = f
	}
	return overrides, nil
}

// parseDate tries the date and timestamp formats the API accepts.
func parseDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %s", s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// envOrDefault returns the value of an environment variable,
// or the given default if the variable is unset or empty.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
