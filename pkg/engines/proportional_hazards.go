package engines

import (
	"context"
	"fmt"

	"github.com/tidysurv/censored/pkg/args"
	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/natives/coxnet"
	"github.com/tidysurv/censored/pkg/natives/coxph"
	"github.com/tidysurv/censored/pkg/penalty"
	"github.com/tidysurv/censored/pkg/predict"
	"github.com/tidysurv/censored/pkg/registry"
)

func registerCoxph(b *registry.Builder) {
	fam, eng := model.FamilyProportionalHazards, model.EngineSurvival

	b.SetModelEngine(fam, eng, model.EngineKindStandard)
	b.SetFit(fam, eng, registry.FitRecipe{
		Func:     fitCoxph,
		Protect:  protected,
		Defaults: map[string]interface{}{"ties": coxph.TiesBreslow},
		Decode: func(data []byte) (model.NativeFit, error) {
			f, err := coxph.Decode(data)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	})
	b.SetEncoding(fam, eng, formula.Encoding{
		PredictorIndicators: formula.IndicatorsTraditional,
		ComputeIntercept:    true,
		RemoveIntercept:     true,
	})

	survfit := func(_ context.Context, call *registry.PredictCall) (interface{}, error) {
		fit, err := nativeAs[*coxph.Fit](call)
		if err != nil {
			return nil, err
		}
		return fit.Survfit(call.X.X)
	}

	b.SetPred(fam, eng, model.TypeTime, registry.PredRecipe{Func: survfit, Post: restrictedMeanPost})
	b.SetPred(fam, eng, model.TypeSurvival, registry.PredRecipe{Func: survfit, Post: survfitPost})
	// The native linear predictor is the log relative hazard.
	b.SetPred(fam, eng, model.TypeLinearPred, registry.PredRecipe{
		Func: func(_ context.Context, call *registry.PredictCall) (interface{}, error) {
			fit, err := nativeAs[*coxph.Fit](call)
			if err != nil {
				return nil, err
			}
			return fit.LinearPredictors(call.X.X)
		},
		Post: scalarPost(true),
	})
}

func fitCoxph(_ context.Context, in *registry.FitInput) (model.NativeFit, error) {
	ties, err := args.String(in.Args, "ties", coxph.TiesBreslow)
	if err != nil {
		return nil, err
	}
	f, err := coxph.Train(in.X.X, in.X.Columns, in.Outcome.Time, in.Outcome.Status, ties)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// pathModel adapts a coxnet path to the fitted model interfaces.
type pathModel struct {
	*coxnet.Fit
}

var (
	_ model.PathFit         = (*pathModel)(nil)
	_ model.TrainingCarrier = (*pathModel)(nil)
)

func (m *pathModel) DetachTraining() *model.TrainingData {
	if m.Data == nil {
		return nil
	}
	td := &model.TrainingData{
		Columns: append([]string(nil), m.Columns...),
		X:       m.Data.X,
		Time:    m.Data.Time,
		Status:  m.Data.Status,
	}
	m.Data = nil
	return td
}

func (m *pathModel) AttachTraining(td *model.TrainingData) {
	if td == nil {
		m.Data = nil
		return
	}
	m.Data = &coxnet.Data{X: td.X, Time: td.Time, Status: td.Status}
}

func registerCoxnet(b *registry.Builder) {
	fam, eng := model.FamilyProportionalHazards, model.EngineGlmnet

	b.SetModelEngine(fam, eng, model.EngineKindPath)
	// lambda is derived by the path routine; the chosen penalty stays on the
	// specification and is added to the path at fit time.
	b.SetModelArg(fam, eng, registry.ArgMapping{Standard: model.ArgPenalty, Native: "lambda", Drop: true})
	b.SetModelArg(fam, eng, registry.ArgMapping{Standard: model.ArgMixture, Native: "alpha"})
	b.SetFit(fam, eng, registry.FitRecipe{
		Func:     fitCoxnet,
		Protect:  append(append([]string(nil), protected...), "family"),
		Defaults: map[string]interface{}{"alpha": 1.0},
		Decode: func(data []byte) (model.NativeFit, error) {
			f, err := coxnet.Decode(data)
			if err != nil {
				return nil, err
			}
			return &pathModel{Fit: f}, nil
		},
	})
	b.SetEncoding(fam, eng, formula.Encoding{
		PredictorIndicators: formula.IndicatorsTraditional,
		ComputeIntercept:    true,
		RemoveIntercept:     true,
		AllowSparseX:        true,
	})

	b.SetPred(fam, eng, model.TypeTime, registry.PredRecipe{Func: coxnetSurvfit, Post: restrictedMeanPost})
	b.SetPred(fam, eng, model.TypeSurvival, registry.PredRecipe{Func: coxnetSurvfit, Post: survfitPost})
	b.SetPred(fam, eng, model.TypeLinearPred, registry.PredRecipe{
		Func:  coxnetLinear,
		Post:  coxnetLinearPost,
		Batch: true,
	})
}

func fitCoxnet(_ context.Context, in *registry.FitInput) (model.NativeFit, error) {
	alpha, err := args.Float(in.Args, "alpha", 1)
	if err != nil {
		return nil, err
	}
	nlambda, err := args.Float(in.Args, "nlambda", 0)
	if err != nil {
		return nil, err
	}
	ratio, err := args.Float(in.Args, "lambda_min_ratio", 0)
	if err != nil {
		return nil, err
	}
	values, err := args.Floats(in.Args, "path_values")
	if err != nil {
		return nil, err
	}

	f, err := coxnet.Train(in.X.X, in.X.Columns, in.Outcome.Time, in.Outcome.Status, coxnet.Options{
		Alpha:          alpha,
		NLambda:        int(nlambda),
		LambdaMinRatio: ratio,
		Lambda:         values,
		Include:        in.Penalty,
	})
	if err != nil {
		return nil, err
	}
	return &pathModel{Fit: f}, nil
}

func coxnetLinear(_ context.Context, call *registry.PredictCall) (interface{}, error) {
	fit, err := nativeAs[*pathModel](call)
	if err != nil {
		return nil, err
	}
	s := call.Penalties
	if len(s) == 0 {
		s = []float64{call.Penalty}
	}
	return fit.PredictLinear(call.X.X, s)
}

// coxnetLinearPost negates the log relative hazard. A batch call pivots
// the row by strength matrix into per-row path entries.
func coxnetLinearPost(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
	m, err := rawAs[[][]float64](raw)
	if err != nil {
		return nil, err
	}
	neg := make([][]float64, len(m))
	for i, row := range m {
		neg[i] = predict.Negate(row)
	}

	if len(call.Penalties) == 0 {
		values, err := predict.Scalars(neg)
		if err != nil {
			return nil, err
		}
		return model.NewScalarResult(model.TypeLinearPred, values), nil
	}

	paths, err := penalty.Pivot(neg, call.Penalties)
	if err != nil {
		return nil, err
	}
	return model.NewPathResult(model.TypeLinearPred, paths), nil
}

func coxnetSurvfit(_ context.Context, call *registry.PredictCall) (interface{}, error) {
	fit, err := nativeAs[*pathModel](call)
	if err != nil {
		return nil, err
	}
	data := fit.Data
	if td := call.Fitted.TrainingCache; td != nil {
		data = &coxnet.Data{X: td.X, Time: td.Time, Status: td.Status}
	}
	return fit.Survfit(call.X.X, call.Penalty, data)
}

func survfitPost(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
	sf, err := rawAs[*coxph.Survfit](raw)
	if err != nil {
		return nil, err
	}
	curves, err := predict.StepCurves(sf.Time, sf.Surv, call.X.NRow(), call.Options.EvalTime)
	if err != nil {
		return nil, err
	}
	return model.NewCurveResult(model.TypeSurvival, curves), nil
}

func restrictedMeanPost(raw interface{}, call *registry.PredictCall) (*model.Result, error) {
	sf, err := rawAs[*coxph.Survfit](raw)
	if err != nil {
		return nil, err
	}
	means := sf.RestrictedMean()
	if len(means) != call.X.NRow() {
		return nil, fmt.Errorf("survival curves cover %d rows, want %d", len(means), call.X.NRow())
	}
	return model.NewScalarResult(model.TypeTime, means), nil
}
