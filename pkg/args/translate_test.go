package args

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"
	"github.com/tidysurv/censored/pkg/telemetry"
)

func testEnv() Env {
	return Env{NObs: 100, NEvents: 40, NPredictors: 3, Predictors: []string{"age", "sex", "ph"}, MaxTime: 1000}
}

func pathRecipe() *registry.EngineRecipe {
	return &registry.EngineRecipe{
		Family: model.FamilyProportionalHazards,
		Engine: model.EngineGlmnet,
		Kind:   model.EngineKindPath,
		Fit: registry.FitRecipe{
			Protect:  []string{"x", "y", "weights", "family"},
			Defaults: map[string]interface{}{"nlambda": 20.0},
		},
		Args: []registry.ArgMapping{
			{Standard: model.ArgPenalty, Native: "lambda", Drop: true},
			{Standard: model.ArgMixture, Native: "alpha"},
		},
	}
}

func standardRecipe() *registry.EngineRecipe {
	return &registry.EngineRecipe{
		Family: model.FamilySurvivalReg,
		Engine: model.EngineSurvival,
		Kind:   model.EngineKindStandard,
		Fit: registry.FitRecipe{
			Protect:  []string{"x", "y", "weights"},
			Defaults: map[string]interface{}{"dist": "exponential"},
		},
		Args: []registry.ArgMapping{
			{Standard: model.ArgDist, Native: "dist"},
		},
	}
}

func newTestTranslator() *Translator {
	return NewTranslator(NewEvaluator(time.Second), telemetry.NewNopLogger())
}

func TestTranslateRenamesAndDrops(t *testing.T) {
	spec := model.ProportionalHazards().
		WithPenalty(0.01).
		WithMixture(0.5).
		WithEngine(model.EngineGlmnet, map[string]model.Arg{"nlambda": model.Value(50)})

	got, err := newTestTranslator().Translate(context.Background(), spec, pathRecipe(), testEnv())
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	want := map[string]interface{}{"alpha": 0.5, "nlambda": 50.0}
	if !reflect.DeepEqual(got.Args, want) {
		t.Errorf("Args = %v, want %v", got.Args, want)
	}
	if got.Penalty == nil || *got.Penalty != 0.01 {
		t.Errorf("Penalty = %v, want 0.01", got.Penalty)
	}
}

func TestTranslateDefaultsAndProtected(t *testing.T) {
	spec := model.SurvivalReg().WithEngine(model.EngineSurvival, map[string]model.Arg{
		"x":       model.Value(1),
		"weights": model.Value([]float64{1, 2}),
		"robust":  model.Value(true),
	})

	got, err := newTestTranslator().Translate(context.Background(), spec, standardRecipe(), testEnv())
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if got.Args["dist"] != "exponential" {
		t.Errorf("dist default not applied: %v", got.Args)
	}
	if got.Args["robust"] != true {
		t.Errorf("unprotected engine arg lost: %v", got.Args)
	}
	if _, ok := got.Args["x"]; ok {
		t.Error("protected arg x was passed through")
	}
	if !reflect.DeepEqual(got.Ignored, []string{"weights", "x"}) {
		t.Errorf("Ignored = %v", got.Ignored)
	}
}

func TestTranslateDeferredExpressions(t *testing.T) {
	spec := model.ProportionalHazards().
		WithArg(model.ArgPenalty, model.Expr("1.0 / n_obs")).
		WithEngine(model.EngineGlmnet, map[string]model.Arg{
			"path_values": model.Expr("seq(0, 0.1, 3)"),
		})

	got, err := newTestTranslator().Translate(context.Background(), spec, pathRecipe(), testEnv())
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if *got.Penalty != 0.01 {
		t.Errorf("Penalty = %v, want 0.01", *got.Penalty)
	}
	if a := got.Resolved[model.ArgPenalty]; a.IsDeferred() || a.Value != 0.01 {
		t.Errorf("Resolved penalty = %v", a)
	}
	want := []float64{0, 0.05, 0.1}
	if !reflect.DeepEqual(got.Args["path_values"], want) {
		t.Errorf("path_values = %v, want %v", got.Args["path_values"], want)
	}
}

func TestTranslatePathPenaltyMustBeScalar(t *testing.T) {
	spec := model.ProportionalHazards().
		WithArg(model.ArgPenalty, model.Value([]float64{0.1, 0.01})).
		WithEngine(model.EngineGlmnet, nil)

	_, err := newTestTranslator().Translate(context.Background(), spec, pathRecipe(), testEnv())
	if !model.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if !strings.Contains(err.Error(), "penalty") || !strings.Contains(err.Error(), "2 values") {
		t.Errorf("error should name the argument and count: %v", err)
	}
	e := err.(*model.Error)
	if e.Details["count"] != 2 {
		t.Errorf("count detail = %v", e.Details["count"])
	}
}

func TestTranslateSinglePenaltyCollection(t *testing.T) {
	spec := model.ProportionalHazards().
		WithArg(model.ArgPenalty, model.Value([]interface{}{0.1})).
		WithEngine(model.EngineGlmnet, nil)

	got, err := newTestTranslator().Translate(context.Background(), spec, pathRecipe(), testEnv())
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if *got.Penalty != 0.1 {
		t.Errorf("Penalty = %v", *got.Penalty)
	}
}

func TestTranslateUnknownArgument(t *testing.T) {
	spec := model.SurvivalReg().WithPenalty(0.1).WithEngine(model.EngineSurvival, nil)

	_, err := newTestTranslator().Translate(context.Background(), spec, standardRecipe(), testEnv())
	if !model.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestTranslateBadExpression(t *testing.T) {
	spec := model.SurvivalReg().
		WithArg(model.ArgDist, model.Expr("undefined_name + 1")).
		WithEngine(model.EngineSurvival, nil)

	_, err := newTestTranslator().Translate(context.Background(), spec, standardRecipe(), testEnv())
	if !model.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if e := err.(*model.Error); e.Code != model.ErrCodeExpressionFailed {
		t.Errorf("Code = %q", e.Code)
	}
}

func TestEnvFrom(t *testing.T) {
	bp := &formula.Blueprint{Predictors: []string{"age", "sex"}}
	x := &formula.Design{X: [][]float64{{1}, {2}, {3}}}
	y := &formula.Outcome{Time: []float64{4, 9, 2}, Status: []float64{1, 0, 1}}

	env := EnvFrom(bp, x, y)
	if env.NObs != 3 || env.NEvents != 2 || env.NPredictors != 2 || env.MaxTime != 9 {
		t.Errorf("EnvFrom() = %+v", env)
	}
}
