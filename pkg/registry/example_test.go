package registry_test

import (
	"context"
	"fmt"

	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"
)

// Example shows how an engine registers its recipes at startup.
func Example() {
	b := registry.NewBuilder()

	fam, eng := model.FamilySurvivalReg, model.EngineSurvival
	b.SetModelEngine(fam, eng, model.EngineKindStandard)
	b.SetModelArg(fam, eng, registry.ArgMapping{Standard: model.ArgDist, Native: "dist"})
	b.SetFit(fam, eng, registry.FitRecipe{
		Func: func(ctx context.Context, in *registry.FitInput) (model.NativeFit, error) {
			return nil, nil
		},
		Protect:  []string{"x", "y", "weights"},
		Defaults: map[string]interface{}{"dist": "exponential"},
	})
	b.SetEncoding(fam, eng, formula.Encoding{
		PredictorIndicators: formula.IndicatorsTraditional,
		ComputeIntercept:    true,
	})
	b.SetPred(fam, eng, model.TypeTime, registry.PredRecipe{
		Func: func(ctx context.Context, call *registry.PredictCall) (interface{}, error) {
			return make([]float64, call.X.NRow()), nil
		},
		Post: func(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
			return model.NewScalarResult(model.TypeTime, raw.([]float64)), nil
		},
	})

	reg, err := b.Build()
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, e := range reg.Engines() {
		fmt.Println(e.Family, e.Engine, e.Kind, e.Types)
	}

	_, err = reg.Prediction(fam, eng, model.TypeHazard)
	fmt.Println(model.IsConfiguration(err))

	// Output:
	// survival_reg survival standard [time]
	// true
}
