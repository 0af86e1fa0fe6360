// Package engines registers the built-in censored regression engines.
//
// Each engine contributes a fit recipe, encoding rules, argument mappings
// and one prediction recipe per supported type. The post-processors here
// are where native output shapes are converted into standardized results.
package engines

import (
	"fmt"
	"sync"

	"github.com/tidysurv/censored/pkg/registry"
)

var (
	once       sync.Once
	defaultReg *registry.Registry
	defaultErr error
)

// Default returns the registry holding every built-in engine. It is built
// once per process and is safe for concurrent use.
func Default() (*registry.Registry, error) {
	once.Do(func() {
		b := registry.NewBuilder()
		Register(b)
		defaultReg, defaultErr = b.Build()
	})
	return defaultReg, defaultErr
}

// MustDefault is like Default but panics if the built-in table is invalid.
func MustDefault() *registry.Registry {
	reg, err := Default()
	if err != nil {
		panic(fmt.Sprintf("engines: %v", err))
	}
	return reg
}

// Register adds the built-in engines to b.
func Register(b *registry.Builder) {
	registerSurvreg(b)
	registerFlexsurv(b)
	registerCoxph(b)
	registerCoxnet(b)
}

// protected native arguments are supplied by the fitting machinery.
var protected = []string{"x", "y", "weights"}

// predType reads the native prediction type a recipe was registered with.
func predType(call *registry.PredictCall) string {
	if s, ok := call.Args["type"].(string); ok {
		return s
	}
	return ""
}

func nativeAs[T any](call *registry.PredictCall) (T, error) {
	v, ok := call.Fitted.Native.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("native fit has type %T, want %T", call.Fitted.Native, zero)
	}
	return v, nil
}

func rawAs[T any](raw interface{}) (T, error) {
	v, ok := raw.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("native prediction has type %T, want %T", raw, zero)
	}
	return v, nil
}
