package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Standardized argument names.
const (
	ArgPenalty = "penalty"
	ArgMixture = "mixture"
	ArgDist    = "dist"
)

// Arg is a model argument that is either concrete or deferred. Deferred
// arguments hold an expression evaluated once, at fit time, against the
// training data.
type Arg struct {
	Value interface{} `json:"value,omitempty"`
	Expr  string      `json:"expr,omitempty"`
}

// Value wraps a concrete argument value.
func Value(v interface{}) Arg {
	return Arg{Value: v}
}

// Expr wraps a deferred expression.
func Expr(expr string) Arg {
	return Arg{Expr: expr}
}

// IsDeferred reports whether the argument still needs evaluation.
func (a Arg) IsDeferred() bool {
	return a.Expr != ""
}

// IsZero reports whether the argument is unset.
func (a Arg) IsZero() bool {
	return a.Expr == "" && a.Value == nil
}

// String renders the argument for logs.
func (a Arg) String() string {
	if a.IsDeferred() {
		return "expr(" + a.Expr + ")"
	}
	return fmt.Sprint(a.Value)
}

// Spec is an immutable model specification. Setters return modified copies.
type Spec struct {
	Family     Family         `json:"family"`
	Mode       Mode           `json:"mode"`
	Engine     EngineName     `json:"engine"`
	Args       map[string]Arg `json:"args,omitempty"`
	EngineArgs map[string]Arg `json:"engine_args,omitempty"`
}

// NewSpec creates a censored regression specification for a family.
func NewSpec(family Family) Spec {
	return Spec{Family: family, Mode: ModeCensoredRegression}
}

// SurvivalReg creates a survival_reg specification.
func SurvivalReg() Spec {
	return NewSpec(FamilySurvivalReg)
}

// ProportionalHazards creates a proportional_hazards specification.
func ProportionalHazards() Spec {
	return NewSpec(FamilyProportionalHazards)
}

// WithEngine returns a copy using the given engine and engine arguments.
func (s Spec) WithEngine(engine EngineName, engineArgs map[string]Arg) Spec {
	out := s.clone()
	out.Engine = engine
	out.EngineArgs = make(map[string]Arg, len(engineArgs))
	for k, v := range engineArgs {
		out.EngineArgs[k] = v
	}
	return out
}

// WithArg returns a copy with a standardized argument set.
func (s Spec) WithArg(name string, a Arg) Spec {
	out := s.clone()
	out.Args[name] = a
	return out
}

// WithPenalty is shorthand for WithArg(ArgPenalty, Value(v)).
func (s Spec) WithPenalty(v float64) Spec {
	return s.WithArg(ArgPenalty, Value(v))
}

// WithMixture is shorthand for WithArg(ArgMixture, Value(v)).
func (s Spec) WithMixture(v float64) Spec {
	return s.WithArg(ArgMixture, Value(v))
}

// Arg returns a standardized argument.
func (s Spec) Arg(name string) (Arg, bool) {
	a, ok := s.Args[name]
	if !ok || a.IsZero() {
		return Arg{}, false
	}
	return a, true
}

// ArgNames returns the set standardized argument names, sorted.
func (s Spec) ArgNames() []string {
	names := make([]string, 0, len(s.Args))
	for k, v := range s.Args {
		if !v.IsZero() {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks the parts of the spec that do not depend on the registry.
func (s Spec) Validate() error {
	if s.Family == "" {
		return NewInvalidArgumentError("model family is required", nil).WithCode(ErrCodeMissingArgument)
	}
	if s.Mode != ModeCensoredRegression {
		return NewConfigurationError(fmt.Sprintf("mode %q is not supported; use %q", s.Mode, ModeCensoredRegression), nil).
			WithCode(ErrCodeUnsupportedMode).
			WithEngine(s.Family, s.Engine)
	}
	if s.Engine == "" {
		return NewInvalidArgumentError("engine is required", nil).
			WithCode(ErrCodeMissingArgument).
			WithEngine(s.Family, s.Engine)
	}
	return nil
}

// String renders the spec for logs.
func (s Spec) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (s Spec) clone() Spec {
	out := s
	out.Args = make(map[string]Arg, len(s.Args))
	for k, v := range s.Args {
		out.Args[k] = v
	}
	out.EngineArgs = make(map[string]Arg, len(s.EngineArgs))
	for k, v := range s.EngineArgs {
		out.EngineArgs[k] = v
	}
	return out
}
