// Package optimize sweeps strategy parameter grids over one bar series,
// ranks the surviving results by a composite score and reports the best
// parameter set. Indicator series are precomputed once per sweep and
// shared read-only across all evaluations.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/algomatic/go-backtest/pkg/engine"
	"github.com/algomatic/go-backtest/pkg/indicators"
	"github.com/algomatic/go-backtest/pkg/metrics"
	"github.com/algomatic/go-backtest/pkg/strategy"
	"github.com/algomatic/go-backtest/pkg/types"
)

// Filters drop evaluations from the ranking before scoring. A filtered
// evaluation still counts toward Tested, never toward Valid.
type Filters struct {
	// MinRoundTrips drops runs with too few completed trades to mean
	// anything.
	MinRoundTrips int `yaml:"min_round_trips" json:"min_round_trips"`
	// MaxDrawdownPct drops runs that lost more than this peak-to-trough.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	// MidRunFloorPct drops runs already below this return at the halfway
	// point of the series.
	MidRunFloorPct float64 `yaml:"mid_run_floor_pct" json:"mid_run_floor_pct"`
}

// DefaultFilters returns the standard sweep filters.
func DefaultFilters() Filters {
	return Filters{
		MinRoundTrips:  5,
		MaxDrawdownPct: 50,
		MidRunFloorPct: -10,
	}
}

// Evaluation is one scored grid point. Result is retained for the trade
// ledger and equity curve of the run but stays out of serialized reports.
type Evaluation struct {
	Overrides map[string]float64 `json:"overrides"`
	Summary   *metrics.Summary   `json:"summary"`
	Score     float64            `json:"score"`
	Result    *engine.Result     `json:"-"`

	params strategy.Params
	order  int
}

// Params returns the validated parameter record the evaluation ran with.
func (e *Evaluation) Params() strategy.Params { return e.params }

// Report is the outcome of one sweep. Ranked is sorted by score
// descending with the enumeration order as a deterministic tie-break;
// Best is Ranked[0] when any evaluation survived the filters.
type Report struct {
	Strategy string        `json:"strategy"`
	Best     *Evaluation   `json:"best,omitempty"`
	Ranked   []*Evaluation `json:"ranked"`
	Tested   int           `json:"tested_count"`
	Valid    int           `json:"valid_count"`
	Filtered int           `json:"filtered_count"`
}

// Sweeper holds the fixed configuration of a parameter sweep.
type Sweeper struct {
	InitialCapital float64
	Interval       types.Interval
	Policy         ScorePolicy
	Filters        Filters
	// Workers caps concurrent evaluations; 0 means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
	// OnEvaluation, when set, is called once per finished evaluation with
	// whether it survived the filters and its score (0 when filtered).
	// Calls are serialized.
	OnEvaluation func(valid bool, score float64)
}

// NewSweeper returns a sweeper with default capital, scoring and filters.
func NewSweeper(interval types.Interval, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		InitialCapital: engine.DefaultInitialCapital,
		Interval:       interval,
		Policy:         DefaultScorePolicy(),
		Filters:        DefaultFilters(),
		Logger:         logger,
	}
}

type job struct {
	order     int
	overrides map[string]float64
	params    strategy.Params
	gen       strategy.Generator
}

// Run evaluates every grid point of the named strategy over bars.
//
// Generator construction is sequential so the shared indicator cache is
// filled exactly once per distinct period; the engine runs then fan out
// across the worker pool, reading the cache without locks. Grid points
// with invalid parameter combinations and runs that trip a filter or a
// numeric failure are counted as filtered, never ranked.
func (s *Sweeper) Run(ctx context.Context, bars []types.Bar, name string, grid []map[string]float64) (*Report, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: empty parameter grid", types.ErrInvalidParameter)
	}
	if err := types.ValidateBars(bars); err != nil {
		return nil, err
	}

	report := &Report{Strategy: name, Tested: len(grid)}
	cache := indicators.NewCache()

	jobs := make([]job, 0, len(grid))
	for order, overrides := range grid {
		p, err := strategy.ParamsWith(name, overrides)
		if err != nil {
			// A grid corner can violate a pairwise invariant (for example
			// fast >= slow); skip it and keep sweeping. A grid whose every
			// point is invalid fails below.
			s.Logger.Debug("grid point invalid", "overrides", overrides, "err", err)
			report.Filtered++
			continue
		}
		gen, err := strategy.New(p, bars, cache)
		if err != nil {
			return nil, fmt.Errorf("building generator for %v: %w", overrides, err)
		}
		jobs = append(jobs, job{order: order, overrides: overrides, params: p, gen: gen})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no valid grid point for strategy %s", types.ErrInvalidParameter, name)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var (
		mu       sync.Mutex
		ranked   []*Evaluation
		filtered int
	)
	jobCh := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				ev, ok := s.evaluate(bars, j)
				mu.Lock()
				if ok {
					ranked = append(ranked, ev)
				} else {
					filtered++
				}
				if s.OnEvaluation != nil {
					score := 0.0
					if ok {
						score = ev.Score
					}
					s.OnEvaluation(ok, score)
				}
				mu.Unlock()
			}
		}()
	}

	var ctxErr error
dispatch:
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break dispatch
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case jobCh <- j:
		}
	}
	close(jobCh)
	wg.Wait()
	if ctxErr != nil {
		return nil, fmt.Errorf("sweep canceled: %w", ctxErr)
	}

	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].order < ranked[b].order
	})
	report.Ranked = ranked
	report.Valid = len(ranked)
	report.Filtered += filtered
	if len(ranked) > 0 {
		report.Best = ranked[0]
	}
	s.Logger.Info("sweep complete",
		"strategy", name,
		"tested", report.Tested,
		"valid", report.Valid,
		"filtered", report.Filtered,
	)
	return report, nil
}

// evaluate runs one grid point and applies the filters. The bool result
// reports whether the evaluation survived into the ranking.
func (s *Sweeper) evaluate(bars []types.Bar, j job) (*Evaluation, bool) {
	eng, err := engine.New(s.InitialCapital, s.Logger)
	if err != nil {
		s.Logger.Warn("engine rejected sweep capital", "err", err)
		return nil, false
	}
	res, err := eng.Run(bars, j.gen)
	if err != nil {
		// Numeric failures discard this evaluation only; the sweep
		// keeps going.
		s.Logger.Warn("evaluation discarded", "overrides", j.overrides, "err", err)
		return nil, false
	}
	summary, err := metrics.Compute(res.Equity, res.Trades, bars, s.Interval)
	if err != nil {
		s.Logger.Warn("metrics discarded", "overrides", j.overrides, "err", err)
		return nil, false
	}

	if summary.RoundTrips < s.Filters.MinRoundTrips {
		return nil, false
	}
	if summary.MaxDrawdownPct > s.Filters.MaxDrawdownPct {
		return nil, false
	}
	if mid := midRunReturn(res); mid < s.Filters.MidRunFloorPct {
		return nil, false
	}

	return &Evaluation{
		Overrides: j.overrides,
		Summary:   summary,
		Score:     s.Policy.Score(summary),
		Result:    res,
		params:    j.params,
		order:     j.order,
	}, true
}

// midRunReturn is the percentage return at the midpoint of the equity
// curve, used to cut losers early.
func midRunReturn(res *engine.Result) float64 {
	if len(res.Equity) < 2 || res.InitialCapital <= 0 {
		return 0
	}
	mid := res.Equity[len(res.Equity)/2].Equity
	return (mid - res.InitialCapital) / res.InitialCapital * 100
}
