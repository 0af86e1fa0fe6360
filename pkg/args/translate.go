// Package args translates standardized model arguments into the native
// argument names of an engine's fitting routine.
package args

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"
	"github.com/tidysurv/censored/pkg/telemetry"
)

// Env is the data environment deferred expressions are evaluated against.
type Env struct {
	NObs        int
	NEvents     int
	NPredictors int
	Predictors  []string
	MaxTime     float64
}

// EnvFrom builds the evaluation environment from molded training data.
func EnvFrom(bp *formula.Blueprint, x *formula.Design, y *formula.Outcome) Env {
	return Env{
		NObs:        x.NRow(),
		NEvents:     y.Events(),
		NPredictors: len(bp.Predictors),
		Predictors:  append([]string(nil), bp.Predictors...),
		MaxTime:     y.MaxTime(),
	}
}

// Native is the result of translating a specification.
type Native struct {
	// Args are passed to the native fitting routine.
	Args map[string]interface{}

	// Resolved holds the standardized arguments with deferred expressions
	// replaced by their values.
	Resolved map[string]model.Arg

	// Penalty is the single standardized penalty of a path engine, if set.
	Penalty *float64

	// Ignored lists engine arguments dropped because they are protected.
	Ignored []string
}

// Translator converts specifications to native arguments.
type Translator struct {
	eval   *Evaluator
	logger *telemetry.Logger
}

// NewTranslator creates a translator. A nil logger falls back to the
// context logger at translation time.
func NewTranslator(eval *Evaluator, logger *telemetry.Logger) *Translator {
	if eval == nil {
		eval = NewEvaluator(0)
	}
	return &Translator{eval: eval, logger: logger}
}

// Translate maps spec arguments onto the recipe's native names. Deferred
// expressions are evaluated exactly once here.
func (t *Translator) Translate(ctx context.Context, spec model.Spec, recipe *registry.EngineRecipe, env Env) (*Native, error) {
	logger := t.logger
	if logger == nil {
		logger = telemetry.FromContext(ctx)
	}
	logger = logger.WithEngine(spec.Family, spec.Engine)

	out := &Native{
		Args:     make(map[string]interface{}),
		Resolved: make(map[string]model.Arg),
	}

	for _, name := range spec.ArgNames() {
		arg, _ := spec.Arg(name)
		val, err := t.resolve(ctx, name, arg, env, spec)
		if err != nil {
			return nil, err
		}
		out.Resolved[name] = model.Value(val)

		mapping, ok := recipe.ArgFor(name)
		if !ok {
			return nil, model.NewInvalidArgumentError(
				fmt.Sprintf("argument %q is not used by %s/%s", name, spec.Family, spec.Engine), nil).
				WithCode(model.ErrCodeNotRegistered).
				WithEngine(spec.Family, spec.Engine).
				WithDetail("argument", name)
		}

		if name == model.ArgPenalty && recipe.Kind == model.EngineKindPath {
			p, err := singlePenalty(val, spec)
			if err != nil {
				return nil, err
			}
			out.Penalty = &p
			val = p
		}

		if mapping.Drop {
			continue
		}
		out.Args[mapping.Native] = val
	}

	protected := make(map[string]bool, len(recipe.Fit.Protect))
	for _, p := range recipe.Fit.Protect {
		protected[p] = true
	}

	engineNames := make([]string, 0, len(spec.EngineArgs))
	for k := range spec.EngineArgs {
		engineNames = append(engineNames, k)
	}
	sort.Strings(engineNames)

	for _, name := range engineNames {
		if protected[name] {
			logger.Warnf("engine argument %q is set internally and will be ignored", name)
			out.Ignored = append(out.Ignored, name)
			continue
		}
		arg := spec.EngineArgs[name]
		if arg.IsZero() {
			continue
		}
		val, err := t.resolve(ctx, name, arg, env, spec)
		if err != nil {
			return nil, err
		}
		out.Args[name] = val
	}

	for k, v := range recipe.Fit.Defaults {
		if _, set := out.Args[k]; !set {
			out.Args[k] = v
		}
	}

	return out, nil
}

func (t *Translator) resolve(ctx context.Context, name string, arg model.Arg, env Env, spec model.Spec) (interface{}, error) {
	if !arg.IsDeferred() {
		return normalize(arg.Value), nil
	}
	v, err := t.eval.Eval(ctx, arg.Expr, env)
	if err != nil {
		return nil, model.NewInvalidArgumentError(fmt.Sprintf("cannot evaluate argument %q", name), err).
			WithCode(model.ErrCodeExpressionFailed).
			WithEngine(spec.Family, spec.Engine).
			WithDetail("argument", name)
	}
	return normalize(v), nil
}

// singlePenalty enforces a scalar penalty for path engines.
func singlePenalty(val interface{}, spec model.Spec) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case []float64:
		if len(v) == 1 {
			return v[0], nil
		}
		return 0, model.NewInvalidArgumentError(
			fmt.Sprintf("argument %q must be a single value; got %d values", model.ArgPenalty, len(v)), nil).
			WithCode(model.ErrCodeScalarRequired).
			WithEngine(spec.Family, spec.Engine).
			WithDetail("argument", model.ArgPenalty).
			WithDetail("count", len(v))
	default:
		return 0, model.NewInvalidArgumentError(
			fmt.Sprintf("argument %q must be numeric, got %T", model.ArgPenalty, val), nil).
			WithCode(model.ErrCodeScalarRequired).
			WithEngine(spec.Family, spec.Engine).
			WithDetail("argument", model.ArgPenalty)
	}
}

// normalize converts numeric values to float64 and numeric lists to
// []float64 so native routines see one representation.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []int:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out
	case []interface{}:
		out := make([]float64, 0, len(val))
		for _, x := range val {
			f, ok := normalize(x).(float64)
			if !ok {
				return val
			}
			out = append(out, f)
		}
		return out
	default:
		return v
	}
}

// Float reads a numeric native argument.
func Float(a map[string]interface{}, name string, def float64) (float64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch f := normalize(v).(type) {
	case float64:
		return f, nil
	case []float64:
		if len(f) == 1 {
			return f[0], nil
		}
	}
	return 0, fmt.Errorf("argument %q must be a number, got %v", name, v)
}

// Floats reads a numeric vector native argument.
func Floats(a map[string]interface{}, name string) ([]float64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch f := normalize(v).(type) {
	case float64:
		return []float64{f}, nil
	case []float64:
		return f, nil
	}
	return nil, fmt.Errorf("argument %q must be numeric, got %v", name, v)
}

// String reads a string native argument.
func String(a map[string]interface{}, name, def string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %v", name, v)
	}
	return s, nil
}
