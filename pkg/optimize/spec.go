package optimize

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/algomatic/go-backtest/pkg/strategy"
	"github.com/algomatic/go-backtest/pkg/types"
)

// axisSpec is one swept parameter in a sweep file: either an explicit
// value list or a min/max/step range. Exactly one form must be used.
type axisSpec struct {
	Values []float64 `yaml:"values"`
	Min    *float64  `yaml:"min"`
	Max    *float64  `yaml:"max"`
	Step   *float64  `yaml:"step"`
}

func (a axisSpec) expand(key string) ([]float64, error) {
	hasRange := a.Min != nil || a.Max != nil || a.Step != nil
	switch {
	case len(a.Values) > 0 && hasRange:
		return nil, fmt.Errorf("%w: axis %q mixes values with min/max/step", types.ErrInvalidParameter, key)
	case len(a.Values) > 0:
		return a.Values, nil
	case a.Min == nil || a.Max == nil || a.Step == nil:
		return nil, fmt.Errorf("%w: axis %q needs values or all of min/max/step", types.ErrInvalidParameter, key)
	case *a.Step <= 0:
		return nil, fmt.Errorf("%w: axis %q step must be > 0, got %v", types.ErrInvalidParameter, key, *a.Step)
	case *a.Min > *a.Max:
		return nil, fmt.Errorf("%w: axis %q min %v exceeds max %v", types.ErrInvalidParameter, key, *a.Min, *a.Max)
	}
	var out []float64
	for v := *a.Min; v <= *a.Max+1e-9; v += *a.Step {
		out = append(out, v)
	}
	return out, nil
}

// smartSpec brackets known-good parameter values instead of spelling
// out a grid: each center expands to steps values on either side at the
// given fractional spacing. Keys listed under integer are rounded.
type smartSpec struct {
	Centers map[string]float64 `yaml:"centers"`
	Spacing float64            `yaml:"spacing"`
	Steps   int                `yaml:"steps"`
	Integer []string           `yaml:"integer"`
}

func (s smartSpec) axes() ([]Axis, error) {
	frac := s.Spacing
	if frac == 0 {
		frac = 0.05
	}
	steps := s.Steps
	if steps == 0 {
		steps = 2
	}
	integer := make(map[string]bool, len(s.Integer))
	for _, k := range s.Integer {
		integer[k] = true
	}
	return SmartAxes(s.Centers, frac, steps, integer)
}

// SweepSpec is a declarative sweep definition loaded from YAML.
type SweepSpec struct {
	Strategy       string              `yaml:"strategy"`
	Symbol         string              `yaml:"symbol"`
	Interval       string              `yaml:"interval"`
	InitialCapital float64             `yaml:"initial_capital"`
	Fixed          map[string]float64  `yaml:"fixed"`
	Sweep          map[string]axisSpec `yaml:"sweep"`
	Smart          *smartSpec          `yaml:"smart"`
	Score          *ScorePolicy        `yaml:"score"`
	Filters        *Filters            `yaml:"filters"`
}

// LoadSweepSpec parses and validates a sweep file. Malformed YAML, an
// unregistered strategy, an empty sweep section or a bad axis all fail
// hard; nothing is defaulted silently except capital and interval.
func LoadSweepSpec(path string) (*SweepSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep spec: %w", err)
	}
	var spec SweepSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing sweep spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("sweep spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the spec against the strategy registry and the axis
// forms.
func (s *SweepSpec) Validate() error {
	if _, err := strategy.ParamsFor(s.Strategy); err != nil {
		return err
	}
	if len(s.Sweep) == 0 && (s.Smart == nil || len(s.Smart.Centers) == 0) {
		return fmt.Errorf("%w: sweep section is empty", types.ErrInvalidParameter)
	}
	if s.Smart != nil {
		if len(s.Smart.Centers) == 0 {
			return fmt.Errorf("%w: smart section has no centers", types.ErrInvalidParameter)
		}
		for k := range s.Smart.Centers {
			if _, clash := s.Sweep[k]; clash {
				return fmt.Errorf("%w: key %q appears in both sweep and smart", types.ErrInvalidParameter, k)
			}
		}
		if _, err := s.Smart.axes(); err != nil {
			return err
		}
	}
	if s.Interval != "" {
		if _, err := types.ParseInterval(s.Interval); err != nil {
			return err
		}
	}
	if s.InitialCapital < 0 {
		return fmt.Errorf("%w: initial_capital must be >= 0, got %v", types.ErrInvalidParameter, s.InitialCapital)
	}
	for key, ax := range s.Sweep {
		if _, err := ax.expand(key); err != nil {
			return err
		}
	}
	return nil
}

// Axes expands the sweep and smart sections into grid axes in sorted
// key order, so the enumeration order of a spec file is stable across
// runs.
func (s *SweepSpec) Axes() ([]Axis, error) {
	keys := make([]string, 0, len(s.Sweep))
	for k := range s.Sweep {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	axes := make([]Axis, 0, len(keys))
	for _, k := range keys {
		vals, err := s.Sweep[k].expand(k)
		if err != nil {
			return nil, err
		}
		axes = append(axes, Axis{Key: k, Values: vals})
	}
	if s.Smart != nil {
		smart, err := s.Smart.axes()
		if err != nil {
			return nil, err
		}
		axes = append(axes, smart...)
		sort.Slice(axes, func(i, j int) bool { return axes[i].Key < axes[j].Key })
	}
	return axes, nil
}

// GridWithFixed expands the axes into override mappings, merging the
// fixed section into every grid point.
func (s *SweepSpec) GridWithFixed() ([]map[string]float64, error) {
	axes, err := s.Axes()
	if err != nil {
		return nil, err
	}
	grid := Grid(axes)
	if len(s.Fixed) == 0 {
		return grid, nil
	}
	for _, combo := range grid {
		for k, v := range s.Fixed {
			if _, swept := combo[k]; !swept {
				combo[k] = v
			}
		}
	}
	return grid, nil
}
