package registry

import (
	"context"

	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
)

// FitInput is what a native fitting routine receives.
type FitInput struct {
	X       *formula.Design
	Outcome *formula.Outcome
	Args    map[string]interface{}

	// Penalty is the selected strength of a path engine. Path routines
	// include it in the trained path.
	Penalty *float64
}

// FitFunc runs the external fitting routine.
type FitFunc func(ctx context.Context, in *FitInput) (model.NativeFit, error)

// DecodeFunc restores a native fit from its JSON encoding.
type DecodeFunc func(data []byte) (model.NativeFit, error)

// FitRecipe describes how to call an engine's fitting routine.
type FitRecipe struct {
	Func FitFunc

	// Protect lists native argument names the caller may not override.
	Protect []string

	// Defaults are applied for native arguments the caller did not set.
	Defaults map[string]interface{}

	// Decode restores a persisted native fit. Optional.
	Decode DecodeFunc
}

// ArgMapping maps a standardized argument name to the engine's native name.
type ArgMapping struct {
	Standard string
	Native   string

	// Drop marks arguments the native routine derives internally. The value
	// is not passed at fit time but stays on the specification.
	Drop bool
}

// EngineRecipe is everything registered for one (family, engine) pair.
type EngineRecipe struct {
	Family   model.Family
	Engine   model.EngineName
	Kind     model.EngineKind
	Fit      FitRecipe
	Encoding formula.Encoding
	Args     []ArgMapping

	hasFit      bool
	hasEncoding bool
}

// ArgFor returns the mapping of a standardized argument.
func (r *EngineRecipe) ArgFor(standard string) (ArgMapping, bool) {
	for _, m := range r.Args {
		if m.Standard == standard {
			return m, true
		}
	}
	return ArgMapping{}, false
}

// PredictCall carries one prediction request through a recipe.
type PredictCall struct {
	Fitted  *model.FittedModel
	X       *formula.Design
	Options model.PredictOptions

	// Penalty is the resolved strength for a single path prediction.
	Penalty float64

	// Penalties are the strengths of a batch call on a Batch recipe.
	Penalties []float64

	// Args are the recipe's fixed native prediction arguments.
	Args map[string]interface{}
}

// PreFunc transforms the forged design before the native call.
type PreFunc func(x *formula.Design, call *PredictCall) (*formula.Design, error)

// PredFunc runs the native prediction routine and returns its raw output.
type PredFunc func(ctx context.Context, call *PredictCall) (interface{}, error)

// PostFunc converts raw native output into a standardized result.
type PostFunc func(raw interface{}, call *PredictCall) (*model.Result, error)

// PredRecipe describes how to produce one prediction type for one engine.
type PredRecipe struct {
	Pre  PreFunc
	Func PredFunc
	Args map[string]interface{}
	Post PostFunc

	// Batch marks recipes whose Func accepts PredictCall.Penalties and
	// returns a row by strength matrix in one call.
	Batch bool
}
