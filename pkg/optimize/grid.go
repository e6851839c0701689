package optimize

import (
	"fmt"
	"math"
	"sort"

	"github.com/algomatic/go-backtest/pkg/types"
)

// Axis is one swept parameter: a key and its candidate values, tried in
// order.
type Axis struct {
	Key    string
	Values []float64
}

// Grid expands axes into the full cartesian product of override mappings.
// Enumeration order is deterministic: the last axis varies fastest.
func Grid(axes []Axis) []map[string]float64 {
	if len(axes) == 0 {
		return nil
	}
	total := 1
	for _, ax := range axes {
		total *= len(ax.Values)
	}
	if total == 0 {
		return nil
	}
	out := make([]map[string]float64, 0, total)
	idx := make([]int, len(axes))
	for {
		combo := make(map[string]float64, len(axes))
		for k, ax := range axes {
			combo[ax.Key] = ax.Values[idx[k]]
		}
		out = append(out, combo)
		k := len(axes) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < len(axes[k].Values) {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			return out
		}
	}
}

// SmartRange brackets a center value with steps values on each side at
// the given fractional spacing (0.05 = 5% per step). Integer axes are
// rounded and deduplicated; the result is sorted ascending.
func SmartRange(center float64, frac float64, steps int, integer bool) []float64 {
	seen := make(map[float64]bool, 2*steps+1)
	var out []float64
	for k := -steps; k <= steps; k++ {
		v := center * (1 + frac*float64(k))
		if integer {
			v = math.Round(v)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// SmartAxes builds one bracketing axis per named center value, for
// refining a known-good parameter set without a hand-written grid.
func SmartAxes(centers map[string]float64, frac float64, steps int, integerKeys map[string]bool) ([]Axis, error) {
	if frac <= 0 || steps < 1 {
		return nil, fmt.Errorf("%w: smart range needs frac > 0 and steps >= 1, got %v/%d",
			types.ErrInvalidParameter, frac, steps)
	}
	keys := make([]string, 0, len(centers))
	for k := range centers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	axes := make([]Axis, 0, len(keys))
	for _, k := range keys {
		axes = append(axes, Axis{Key: k, Values: SmartRange(centers[k], frac, steps, integerKeys[k])})
	}
	return axes, nil
}
