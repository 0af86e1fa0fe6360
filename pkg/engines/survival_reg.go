package engines

import (
	"context"

	"github.com/tidysurv/censored/pkg/args"
	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/natives/flexsurv"
	"github.com/tidysurv/censored/pkg/natives/survreg"
	"github.com/tidysurv/censored/pkg/predict"
	"github.com/tidysurv/censored/pkg/registry"
)

var aftEncoding = formula.Encoding{
	PredictorIndicators: formula.IndicatorsTraditional,
	ComputeIntercept:    true,
}

func registerSurvreg(b *registry.Builder) {
	fam, eng := model.FamilySurvivalReg, model.EngineSurvival

	b.SetModelEngine(fam, eng, model.EngineKindStandard)
	b.SetModelArg(fam, eng, registry.ArgMapping{Standard: model.ArgDist, Native: "dist"})
	b.SetFit(fam, eng, registry.FitRecipe{
		Func:     fitSurvreg,
		Protect:  protected,
		Defaults: map[string]interface{}{"dist": survreg.DistExponential},
		Decode: func(data []byte) (model.NativeFit, error) {
			f, err := survreg.Decode(data)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	})
	b.SetEncoding(fam, eng, aftEncoding)

	b.SetPred(fam, eng, model.TypeTime, registry.PredRecipe{
		Func: survregPredict,
		Args: map[string]interface{}{"type": survreg.TypeResponse},
		Post: scalarPost(false),
	})
	b.SetPred(fam, eng, model.TypeSurvival, registry.PredRecipe{
		Func: survregPredict,
		Args: map[string]interface{}{"type": survreg.TypeSurvival},
		Post: matrixPost,
	})
	b.SetPred(fam, eng, model.TypeHazard, registry.PredRecipe{
		Func: survregPredict,
		Args: map[string]interface{}{"type": survreg.TypeHazard},
		Post: matrixPost,
	})
	b.SetPred(fam, eng, model.TypeQuantile, registry.PredRecipe{
		Func: survregPredict,
		Args: map[string]interface{}{"type": survreg.TypeQuantile},
		Post: matrixPost,
	})
	b.SetPred(fam, eng, model.TypeLinearPred, registry.PredRecipe{
		Func: survregPredict,
		Args: map[string]interface{}{"type": survreg.TypeLP},
		Post: scalarPost(false),
	})
}

func fitSurvreg(_ context.Context, in *registry.FitInput) (model.NativeFit, error) {
	dist, err := args.String(in.Args, "dist", survreg.DistExponential)
	if err != nil {
		return nil, err
	}
	f, err := survreg.Train(in.X.X, in.X.Columns, in.Outcome.Time, in.Outcome.Status, survreg.Options{Dist: dist})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func survregPredict(_ context.Context, call *registry.PredictCall) (interface{}, error) {
	fit, err := nativeAs[*survreg.Fit](call)
	if err != nil {
		return nil, err
	}
	return fit.Predict(call.X.X, predType(call), call.Options.Keys())
}

func registerFlexsurv(b *registry.Builder) {
	fam, eng := model.FamilySurvivalReg, model.EngineFlexsurv

	b.SetModelEngine(fam, eng, model.EngineKindStandard)
	b.SetModelArg(fam, eng, registry.ArgMapping{Standard: model.ArgDist, Native: "dist"})
	b.SetFit(fam, eng, registry.FitRecipe{
		Func:     fitFlexsurv,
		Protect:  protected,
		Defaults: map[string]interface{}{"dist": "exponential"},
		Decode: func(data []byte) (model.NativeFit, error) {
			f, err := flexsurv.Decode(data)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	})
	b.SetEncoding(fam, eng, aftEncoding)

	b.SetPred(fam, eng, model.TypeTime, registry.PredRecipe{
		Func: flexsurvSummary,
		Args: map[string]interface{}{"type": flexsurv.TypeMean},
		Post: flexsurvMeanPost,
	})
	b.SetPred(fam, eng, model.TypeSurvival, registry.PredRecipe{
		Func: flexsurvSummary,
		Args: map[string]interface{}{"type": flexsurv.TypeSurvival},
		Post: flexsurvTablePost,
	})
	b.SetPred(fam, eng, model.TypeHazard, registry.PredRecipe{
		Func: flexsurvSummary,
		Args: map[string]interface{}{"type": flexsurv.TypeHazard},
		Post: flexsurvTablePost,
	})
	b.SetPred(fam, eng, model.TypeQuantile, registry.PredRecipe{
		Func: flexsurvSummary,
		Args: map[string]interface{}{"type": flexsurv.TypeQuantile},
		Post: flexsurvTablePost,
	})
	// The native linear predictor is the log rate, which grows with risk.
	b.SetPred(fam, eng, model.TypeLinearPred, registry.PredRecipe{
		Func: func(_ context.Context, call *registry.PredictCall) (interface{}, error) {
			fit, err := nativeAs[*flexsurv.Fit](call)
			if err != nil {
				return nil, err
			}
			return fit.Linear(call.X.X)
		},
		Post: scalarPost(true),
	})
}

func fitFlexsurv(_ context.Context, in *registry.FitInput) (model.NativeFit, error) {
	dist, err := args.String(in.Args, "dist", "exponential")
	if err != nil {
		return nil, err
	}
	f, err := flexsurv.Train(in.X.X, in.X.Columns, in.Outcome.Time, in.Outcome.Status, dist)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func flexsurvSummary(_ context.Context, call *registry.PredictCall) (interface{}, error) {
	fit, err := nativeAs[*flexsurv.Fit](call)
	if err != nil {
		return nil, err
	}
	var at []float64
	if call.Options.Type.IsCurve() {
		at = call.Options.Keys()
	}
	return fit.Summary(call.X.X, predType(call), at)
}

func flexsurvMeanPost(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
	tables, err := rawAs[[]flexsurv.Table](raw)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(tables))
	for i, t := range tables {
		out[i] = t.Est
	}
	values, err := predict.Scalars(out)
	if err != nil {
		return nil, err
	}
	return model.NewScalarResult(call.Options.Type, values), nil
}

func flexsurvTablePost(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
	tables, err := rawAs[[]flexsurv.Table](raw)
	if err != nil {
		return nil, err
	}
	rows := make([]predict.Nested, len(tables))
	for i, t := range tables {
		keys := t.Time
		if call.Options.Type == model.TypeQuantile {
			keys = t.Quantile
		}
		rows[i] = predict.Nested{Keys: keys, Values: t.Est}
	}
	curves, err := predict.NestedCurves(rows, call.Options.Keys())
	if err != nil {
		return nil, err
	}
	return model.NewCurveResult(call.Options.Type, curves), nil
}

// scalarPost coerces one value per row, negating when the native scale
// increases with risk.
func scalarPost(negate bool) registry.PostFunc {
	return func(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
		values, err := predict.Scalars(raw)
		if err != nil {
			return nil, err
		}
		if negate {
			values = predict.Negate(values)
		}
		return model.NewScalarResult(call.Options.Type, values), nil
	}
}

func matrixPost(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
	m, err := rawAs[[][]float64](raw)
	if err != nil {
		return nil, err
	}
	curves, err := predict.MatrixCurves(m, call.Options.Keys())
	if err != nil {
		return nil, err
	}
	return model.NewCurveResult(call.Options.Type, curves), nil
}
