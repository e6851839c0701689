package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/algomatic/go-backtest/pkg/types"
)

// registry maps strategy names to default parameter constructors. Each
// lookup returns a fresh record so callers can mutate overrides without
// sharing state.
var (
	regMu    sync.RWMutex
	registry = map[string]func() Params{}
)

// Register adds a named variant to the registry. Registering a duplicate
// name panics; variant names are compile-time constants.
func Register(name string, factory func() Params) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategy: duplicate registration of %q", name))
	}
	registry[name] = factory
}

// ParamsFor returns a fresh default parameter record for the named
// variant, or ErrInvalidParameter if the name is not registered.
func ParamsFor(name string) (Params, error) {
	regMu.RLock()
	factory, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (known: %v)", types.ErrInvalidParameter, name, Names())
	}
	return factory(), nil
}

// ParamsWith builds a parameter record for the named variant with the
// given overrides applied and validated.
func ParamsWith(name string, overrides map[string]float64) (Params, error) {
	p, err := ParamsFor(name)
	if err != nil {
		return nil, err
	}
	if err := ApplyOverrides(p, overrides); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return p, nil
}

// Names lists the registered variant names in sorted order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("adaptive_ema_v1", func() Params { return DefaultAdaptiveEMAV1() })
	Register("adaptive_ema_v2", func() Params { return DefaultAdaptiveEMAV2() })
	Register("adaptive_ema_v2_1", func() Params { return DefaultAdaptiveEMAV21() })
	Register("adaptive_ema_vol_v1", func() Params { return DefaultAdaptiveEMAVolV1() })
	Register("adaptive_donchian_v1", func() Params { return DefaultAdaptiveDonchianV1() })
}
