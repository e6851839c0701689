package conditions

import (
	"math"
	"testing"
)

func TestCrossesAbove(t *testing.T) {
	fast := []float64{1, 2, 3, 4}
	slow := []float64{2.5, 2.5, 2.5, 2.5}

	cases := []struct {
		name string
		i    int
		want bool
	}{
		{"before cross", 1, false},
		{"at cross", 2, true},
		{"after cross", 3, false},
		{"index zero has no lookback", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CrossesAbove(fast, slow, tc.i); got != tc.want {
				t.Errorf("CrossesAbove(i=%d) = %v, want %v", tc.i, got, tc.want)
			}
		})
	}
}

func TestCrossesBelow(t *testing.T) {
	fast := []float64{4, 3, 2, 1}
	slow := []float64{2.5, 2.5, 2.5, 2.5}
	if CrossesBelow(fast, slow, 1) {
		t.Error("no crossunder yet at i=1")
	}
	if !CrossesBelow(fast, slow, 2) {
		t.Error("expected crossunder at i=2")
	}
}

func TestCrossTouchThenBreak(t *testing.T) {
	// Equal at i-1 then above at i still counts as a cross.
	fast := []float64{2.5, 3}
	slow := []float64{2.5, 2.5}
	if !CrossesAbove(fast, slow, 1) {
		t.Error("touch-then-break must count as a crossover")
	}
}

func TestNaNSuppressesSignals(t *testing.T) {
	fast := []float64{1, math.NaN(), 3}
	slow := []float64{2, 2, 2}
	if CrossesAbove(fast, slow, 2) {
		t.Error("NaN in the lookback must suppress the crossover")
	}
	if AtOrAboveValue([]float64{math.NaN()}, 0, 1) {
		t.Error("NaN must not compare above a threshold")
	}
	if WithinBand([]float64{math.NaN()}, 0, 0, 100) {
		t.Error("NaN is never within a band")
	}
}

func TestCrossPair(t *testing.T) {
	bull := CrossPair{PrevFast: 1, PrevSlow: 2, Fast: 3, Slow: 2}
	if !bull.Bullish() {
		t.Error("expected bullish cross")
	}
	if bull.Bearish() {
		t.Error("bullish pair must not read bearish")
	}
	bear := CrossPair{PrevFast: 3, PrevSlow: 2, Fast: 1, Slow: 2}
	if !bear.Bearish() {
		t.Error("expected bearish cross")
	}
	undef := CrossPair{PrevFast: math.NaN(), PrevSlow: 2, Fast: 3, Slow: 2}
	if undef.Bullish() || undef.Bearish() {
		t.Error("NaN previous values must suppress crosses")
	}
}

func TestWithinBand(t *testing.T) {
	series := []float64{35, 55, 75}
	if !WithinBand(series, 1, 40, 70) {
		t.Error("55 is within [40,70]")
	}
	if WithinBand(series, 0, 40, 70) {
		t.Error("35 is below the band")
	}
	if WithinBand(series, 2, 40, 70) {
		t.Error("75 is above the band")
	}
}

func TestBreaksAboveUsesPreviousLevel(t *testing.T) {
	level := []float64{10, 20, 30}
	// Price 15 at i=1 compares against level[0]=10.
	if !BreaksAbove(15, level, 1) {
		t.Error("15 breaks above previous level 10")
	}
	// Same price at i=2 compares against level[1]=20.
	if BreaksAbove(15, level, 2) {
		t.Error("15 does not break above previous level 20")
	}
	if BreaksAbove(15, level, 0) {
		t.Error("index 0 has no previous level")
	}
}

func TestBreaksBelow(t *testing.T) {
	level := []float64{10, 8, 6}
	if !BreaksBelow(7, level, 2) {
		t.Error("7 breaks below previous level 8")
	}
	if BreaksBelow(9, level, 2) {
		t.Error("9 does not break below previous level 8")
	}
}
