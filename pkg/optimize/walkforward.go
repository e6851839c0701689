package optimize

import (
	"context"
	"fmt"

	"github.com/algomatic/go-backtest/pkg/engine"
	"github.com/algomatic/go-backtest/pkg/metrics"
	"github.com/algomatic/go-backtest/pkg/strategy"
	"github.com/algomatic/go-backtest/pkg/types"
)

// Fold is one train/test window of a walk-forward run.
type Fold struct {
	TrainStart int         `json:"train_start"`
	TrainEnd   int         `json:"train_end"` // exclusive, start of the test window
	TestEnd    int         `json:"test_end"`  // exclusive
	Best       *Evaluation `json:"best"`
	// TestSummary and TestScore come from re-running the fold's best
	// parameters on the unseen test window.
	TestSummary *metrics.Summary `json:"test_summary"`
	TestScore   float64          `json:"test_score"`
}

// WalkForwardReport aggregates the folds. Degradation compares mean
// out-of-sample score against mean in-sample score: a strategy that only
// works on data it was tuned on shows a large drop here.
type WalkForwardReport struct {
	Strategy       string  `json:"strategy"`
	Folds          []Fold  `json:"folds"`
	MeanTrainScore float64 `json:"mean_train_score"`
	MeanTestScore  float64 `json:"mean_test_score"`
	DegradationPct float64 `json:"degradation_pct"`
}

// WalkForward rolls a train window followed by a test window across the
// bars, sweeping the grid on each train slice and re-scoring the winning
// parameters on the adjacent unseen test slice. Folds whose train sweep
// leaves no valid result are skipped.
func (s *Sweeper) WalkForward(ctx context.Context, bars []types.Bar, name string, grid []map[string]float64, trainBars, testBars int) (*WalkForwardReport, error) {
	if trainBars < 2 || testBars < 2 {
		return nil, fmt.Errorf("%w: train/test windows must each cover at least 2 bars, got %d/%d",
			types.ErrInvalidParameter, trainBars, testBars)
	}
	if len(bars) < trainBars+testBars {
		return nil, fmt.Errorf("%w: %d bars cannot fit one %d+%d train/test fold",
			types.ErrInsufficientData, len(bars), trainBars, testBars)
	}

	report := &WalkForwardReport{Strategy: name}
	var trainSum, testSum float64

	for start := 0; start+trainBars+testBars <= len(bars); start += testBars {
		trainEnd := start + trainBars
		testEnd := trainEnd + testBars

		sweep, err := s.Run(ctx, bars[start:trainEnd], name, grid)
		if err != nil {
			return nil, fmt.Errorf("fold at %d: %w", start, err)
		}
		if sweep.Best == nil {
			s.Logger.Warn("walk-forward fold has no valid train result", "train_start", start)
			continue
		}

		testSummary, err := s.scoreWindow(bars[trainEnd:testEnd], sweep.Best.Params())
		if err != nil {
			s.Logger.Warn("walk-forward test window discarded", "train_start", start, "err", err)
			continue
		}
		fold := Fold{
			TrainStart:  start,
			TrainEnd:    trainEnd,
			TestEnd:     testEnd,
			Best:        sweep.Best,
			TestSummary: testSummary,
			TestScore:   s.Policy.Score(testSummary),
		}
		report.Folds = append(report.Folds, fold)
		trainSum += sweep.Best.Score
		testSum += fold.TestScore
	}

	if n := len(report.Folds); n > 0 {
		report.MeanTrainScore = trainSum / float64(n)
		report.MeanTestScore = testSum / float64(n)
		if report.MeanTrainScore != 0 {
			report.DegradationPct = (report.MeanTrainScore - report.MeanTestScore) / report.MeanTrainScore * 100
		}
	}
	return report, nil
}

// scoreWindow runs fixed parameters over one bar window and summarizes.
func (s *Sweeper) scoreWindow(bars []types.Bar, p strategy.Params) (*metrics.Summary, error) {
	gen, err := strategy.New(p, bars, nil)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(s.InitialCapital, s.Logger)
	if err != nil {
		return nil, err
	}
	res, err := eng.Run(bars, gen)
	if err != nil {
		return nil, err
	}
	return metrics.Compute(res.Equity, res.Trades, bars, s.Interval)
}
