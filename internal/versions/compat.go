package versions

import (
	"fmt"
	"strings"
)

// CompatibilityStrategy decides whether an addon built against apiVersion
// can run on a container at runtimeVersion.
type CompatibilityStrategy interface {
	Name() string
	IsCompatible(runtimeVersion, apiVersion Version) bool
}

// Strict requires the same major version and a runtime no older than the
// addon's API version.
type Strict struct{}

func (Strict) Name() string { return "strict" }

func (Strict) IsCompatible(runtime, api Version) bool {
	if runtime.IsEmpty() || api.IsEmpty() {
		return true
	}
	return runtime.Major() == api.Major() && runtime.compareCore(api) >= 0
}

// Lenient only requires the same major version.
type Lenient struct{}

func (Lenient) Name() string { return "lenient" }

func (Lenient) IsCompatible(runtime, api Version) bool {
	if runtime.IsEmpty() || api.IsEmpty() {
		return true
	}
	return runtime.Major() == api.Major()
}

// AllCompatible accepts every addon.
type AllCompatible struct{}

func (AllCompatible) Name() string                   { return "none" }
func (AllCompatible) IsCompatible(_, _ Version) bool { return true }

// StrategyByName resolves a configured strategy name. The empty name
// selects Strict.
func StrategyByName(name string) (CompatibilityStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict":
		return Strict{}, nil
	case "lenient":
		return Lenient{}, nil
	case "none", "all":
		return AllCompatible{}, nil
	}
	return nil, fmt.Errorf("unknown compatibility strategy %q", name)
}
