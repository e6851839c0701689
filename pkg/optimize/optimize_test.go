package optimize

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/algomatic/go-backtest/pkg/metrics"
	"github.com/algomatic/go-backtest/pkg/types"
)

func mkBars(closes []float64) []types.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}
	}
	return bars
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 200*float64(i)/float64(n-1)
	}
	return closes
}

func zigzagCloses(n, leg int) []float64 {
	closes := make([]float64, n)
	v := 100.0
	dir := -1.0
	for i := 0; i < n; i++ {
		if i%leg == 0 {
			dir = -dir
		}
		v += dir
		closes[i] = v
	}
	return closes
}

// v2Grid is a fast_base x slow_base grid with the short fixed lengths
// merged into every point.
func v2Grid(fasts, slows []float64) []map[string]float64 {
	grid := Grid([]Axis{
		{Key: "fast_base", Values: fasts},
		{Key: "slow_base", Values: slows},
	})
	for _, combo := range grid {
		combo["atr_length"] = 3
		combo["vol_threshold"] = 60
		combo["vol_length"] = 25
	}
	return grid
}

func TestGridCartesianOrder(t *testing.T) {
	got := Grid([]Axis{
		{Key: "a", Values: []float64{1, 2}},
		{Key: "b", Values: []float64{10, 20, 30}},
	})
	if len(got) != 6 {
		t.Fatalf("got %d combos, want 6", len(got))
	}
	want0 := map[string]float64{"a": 1, "b": 10}
	want1 := map[string]float64{"a": 1, "b": 20}
	want5 := map[string]float64{"a": 2, "b": 30}
	if !reflect.DeepEqual(got[0], want0) || !reflect.DeepEqual(got[1], want1) || !reflect.DeepEqual(got[5], want5) {
		t.Errorf("unexpected enumeration order: %v", got)
	}
}

func TestSmartRange(t *testing.T) {
	got := SmartRange(20, 0.05, 1, true)
	want := []float64{19, 20, 21}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SmartRange = %v, want %v", got, want)
	}
	// narrow fractions collapse to the center for integer axes
	got = SmartRange(3, 0.05, 1, true)
	if !reflect.DeepEqual(got, []float64{3}) {
		t.Errorf("SmartRange = %v, want [3]", got)
	}
}

func TestScorePolicy(t *testing.T) {
	p := DefaultScorePolicy()
	s := &metrics.Summary{
		TotalReturnPct: 40,
		SharpeRatio:    2,  // x20 = 40
		CalmarRatio:    3,  // x10 = 30
		WinRatePct:     60, // as-is
		ProfitFactor:   metrics.ProfitFactor{Value: 2.5}, // x20 = 50
	}
	want := 0.35*40 + 0.25*40 + 0.20*30 + 0.10*50 + 0.10*60
	if got := p.Score(s); math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %.6f, want %.6f", got, want)
	}
}

func TestScorePolicyClipsAndInfinity(t *testing.T) {
	p := DefaultScorePolicy()
	s := &metrics.Summary{
		TotalReturnPct: 500,  // clipped to 100
		SharpeRatio:    -3,   // clipped to 0
		CalmarRatio:    1000, // clipped to 100
		WinRatePct:     100,
		ProfitFactor:   metrics.ProfitFactor{Infinite: true}, // saturates to 100
	}
	want := 0.35*100 + 0.25*0 + 0.20*100 + 0.10*100 + 0.10*100
	if got := p.Score(s); math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %.6f, want %.6f", got, want)
	}
}

func newTestSweeper() *Sweeper {
	s := NewSweeper(types.Interval1h, nil)
	s.Filters = Filters{MinRoundTrips: 0, MaxDrawdownPct: math.Inf(1), MidRunFloorPct: math.Inf(-1)}
	s.Workers = 2
	return s
}

func TestSweepGridOfNine(t *testing.T) {
	bars := mkBars(risingCloses(200))
	grid := v2Grid([]float64{2, 3, 4}, []float64{5, 6, 7})

	report, err := newTestSweeper().Run(context.Background(), bars, "adaptive_ema_v2", grid)
	if err != nil {
		t.Fatal(err)
	}
	if report.Tested != 9 {
		t.Errorf("tested = %d, want 9", report.Tested)
	}
	if report.Valid+report.Filtered != report.Tested {
		t.Errorf("valid %d + filtered %d != tested %d", report.Valid, report.Filtered, report.Tested)
	}
	if report.Best == nil {
		t.Fatal("no best result")
	}
	for _, ev := range report.Ranked {
		if report.Best.Score < ev.Score {
			t.Errorf("best score %.4f below ranked score %.4f", report.Best.Score, ev.Score)
		}
	}
}

func TestSweepRanksByScoreDescending(t *testing.T) {
	bars := mkBars(zigzagCloses(300, 15))
	grid := v2Grid([]float64{2, 3, 4}, []float64{6, 9, 12})

	report, err := newTestSweeper().Run(context.Background(), bars, "adaptive_ema_v2", grid)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid < 2 {
		t.Fatalf("valid = %d, want several scored results", report.Valid)
	}
	for i := 1; i < len(report.Ranked); i++ {
		if report.Ranked[i-1].Score < report.Ranked[i].Score {
			t.Errorf("ranking not descending at %d: %.4f < %.4f",
				i, report.Ranked[i-1].Score, report.Ranked[i].Score)
		}
	}
	if report.Best != report.Ranked[0] {
		t.Error("best is not the top-ranked evaluation")
	}
}

func TestSweepFiltersInvalidGridPoints(t *testing.T) {
	bars := mkBars(zigzagCloses(200, 15))
	// (6, 5) violates fast < slow and must be filtered, not fatal
	grid := v2Grid([]float64{4, 6}, []float64{5, 8})

	report, err := newTestSweeper().Run(context.Background(), bars, "adaptive_ema_v2", grid)
	if err != nil {
		t.Fatal(err)
	}
	if report.Tested != 4 {
		t.Errorf("tested = %d, want 4", report.Tested)
	}
	if report.Filtered < 1 {
		t.Errorf("filtered = %d, want the invalid corner filtered", report.Filtered)
	}
	if report.Valid+report.Filtered != report.Tested {
		t.Errorf("valid %d + filtered %d != tested %d", report.Valid, report.Filtered, report.Tested)
	}
}

func TestSweepAllPointsInvalidFails(t *testing.T) {
	bars := mkBars(zigzagCloses(100, 10))
	grid := []map[string]float64{{"no_such_key": 1}}
	_, err := newTestSweeper().Run(context.Background(), bars, "adaptive_ema_v2", grid)
	if !errors.Is(err, types.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
}

func TestSweepHonorsCancellation(t *testing.T) {
	bars := mkBars(zigzagCloses(200, 15))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestSweeper().Run(ctx, bars, "adaptive_ema_v2", v2Grid([]float64{2, 3}, []float64{6, 9}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSweepMinTradesFilter(t *testing.T) {
	bars := mkBars(risingCloses(200)) // a pure trend trades at most once
	s := newTestSweeper()
	s.Filters.MinRoundTrips = 5
	report, err := s.Run(context.Background(), bars, "adaptive_ema_v2", v2Grid([]float64{2, 3}, []float64{6, 9}))
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid != 0 {
		t.Errorf("valid = %d, want every thin result filtered", report.Valid)
	}
	if report.Best != nil {
		t.Error("best set despite all evaluations being filtered")
	}
}

func TestLoadSweepSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	spec := `
strategy: adaptive_ema_v2
symbol: SPY
interval: 1h
initial_capital: 25000
fixed:
  atr_length: 3
sweep:
  fast_base:
    values: [2, 3, 4]
  slow_base:
    min: 6
    max: 12
    step: 3
`
	if err := os.WriteFile(path, []byte(spec), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSweepSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	grid, err := loaded.GridWithFixed()
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) != 9 { // 3 fast x 3 slow (6, 9, 12)
		t.Fatalf("grid size = %d, want 9", len(grid))
	}
	for _, combo := range grid {
		if combo["atr_length"] != 3 {
			t.Fatalf("fixed key missing from combo %v", combo)
		}
	}
}

func TestLoadSweepSpecSmartAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	spec := `
strategy: adaptive_ema_v2
sweep:
  vol_threshold:
    values: [60, 70]
smart:
  centers:
    fast_base: 10
    slow_base: 30
  spacing: 0.1
  steps: 1
  integer: [fast_base, slow_base]
`
	if err := os.WriteFile(path, []byte(spec), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSweepSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	axes, err := loaded.Axes()
	if err != nil {
		t.Fatal(err)
	}
	want := []Axis{
		{Key: "fast_base", Values: []float64{9, 10, 11}},
		{Key: "slow_base", Values: []float64{27, 30, 33}},
		{Key: "vol_threshold", Values: []float64{60, 70}},
	}
	if !reflect.DeepEqual(axes, want) {
		t.Fatalf("axes = %v, want %v", axes, want)
	}
	grid, err := loaded.GridWithFixed()
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) != 18 { // 3 fast x 3 slow x 2 vol
		t.Fatalf("grid size = %d, want 18", len(grid))
	}
}

func TestLoadSweepSpecRejectsBadAxes(t *testing.T) {
	cases := map[string]string{
		"unknown_strategy": "strategy: nope\nsweep:\n  fast_base:\n    values: [2]\n",
		"empty_sweep":      "strategy: adaptive_ema_v2\n",
		"zero_step":        "strategy: adaptive_ema_v2\nsweep:\n  fast_base:\n    min: 1\n    max: 3\n    step: 0\n",
		"mixed_axis":       "strategy: adaptive_ema_v2\nsweep:\n  fast_base:\n    values: [2]\n    min: 1\n    max: 3\n    step: 1\n",
		"inverted_range":   "strategy: adaptive_ema_v2\nsweep:\n  fast_base:\n    min: 5\n    max: 3\n    step: 1\n",
		"smart_key_clash":  "strategy: adaptive_ema_v2\nsweep:\n  fast_base:\n    values: [2]\nsmart:\n  centers:\n    fast_base: 10\n",
		"smart_no_centers": "strategy: adaptive_ema_v2\nsmart:\n  spacing: 0.1\n",
		"smart_bad_spacing": "strategy: adaptive_ema_v2\nsmart:\n  centers:\n    fast_base: 10\n  spacing: -0.1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sweep.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSweepSpec(path); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestWalkForwardFolds(t *testing.T) {
	bars := mkBars(zigzagCloses(400, 15))
	grid := v2Grid([]float64{2, 3}, []float64{6, 9})

	report, err := newTestSweeper().WalkForward(context.Background(), bars, "adaptive_ema_v2", grid, 150, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Folds) == 0 {
		t.Fatal("no folds produced")
	}
	for i, f := range report.Folds {
		if f.TrainEnd-f.TrainStart != 150 || f.TestEnd-f.TrainEnd != 50 {
			t.Errorf("fold %d window = [%d,%d,%d], want 150/50 split", i, f.TrainStart, f.TrainEnd, f.TestEnd)
		}
		if f.Best == nil || f.TestSummary == nil {
			t.Fatalf("fold %d incomplete: %+v", i, f)
		}
		if math.IsNaN(f.TestScore) {
			t.Errorf("fold %d test score is NaN", i)
		}
	}
}

func TestWalkForwardTooFewBars(t *testing.T) {
	bars := mkBars(zigzagCloses(100, 10))
	_, err := newTestSweeper().WalkForward(context.Background(), bars, "adaptive_ema_v2", v2Grid([]float64{2}, []float64{6}), 150, 50)
	if !errors.Is(err, types.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}
