package predict_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/tidysurv/censored/pkg/engines"
	"github.com/tidysurv/censored/pkg/fit"
	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/frame"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/penalty"
	"github.com/tidysurv/censored/pkg/predict"
)

const nTrain = 48

// trainingFrame has survival increasing with age.
func trainingFrame(t *testing.T) *frame.Frame {
	t.Helper()
	tm := make([]float64, nTrain)
	st := make([]float64, nTrain)
	age := make([]float64, nTrain)
	grp := make([]string, nTrain)
	for i := 0; i < nTrain; i++ {
		age[i] = float64(i%9) - 4
		grp[i] = []string{"a", "b"}[i%2]
		base := 1 + float64((i*37)%17)/4
		tm[i] = base * math.Exp(0.5*age[i])
		if i%5 != 0 {
			st[i] = 1
		}
	}
	fr, err := frame.New(
		frame.Numeric("time", tm...),
		frame.Numeric("status", st...),
		frame.Numeric("age", age...),
		frame.Nominal("group", grp...),
	)
	if err != nil {
		t.Fatalf("frame.New() error = %v", err)
	}
	return fr
}

// newData has three rows ordered by increasing age.
func newData(t *testing.T) *frame.Frame {
	t.Helper()
	fr, err := frame.New(
		frame.Numeric("age", -4, 0, 4),
		frame.Nominal("group", "a", "a", "a"),
	)
	if err != nil {
		t.Fatalf("frame.New() error = %v", err)
	}
	return fr
}

var form = formula.MustParse("Surv(time, status) ~ age + group")

func fitModel(t *testing.T, spec model.Spec) *model.FittedModel {
	t.Helper()
	m, err := fit.NewFitter(engines.MustDefault(), nil, fit.Options{}).Fit(context.Background(), spec, form, trainingFrame(t))
	if err != nil {
		t.Fatalf("Fit(%s/%s) error = %v", spec.Family, spec.Engine, err)
	}
	return m
}

func newRouter() *predict.Router {
	return predict.NewRouter(engines.MustDefault(), penalty.NewResolver(2))
}

// glmnetSpec fixes the selected penalty at a small value so coefficients
// are not shrunk to zero.
func glmnetSpec() model.Spec {
	return model.ProportionalHazards().WithEngine(model.EngineGlmnet, nil).WithPenalty(0.001)
}

func allSpecs() []model.Spec {
	return []model.Spec{
		model.SurvivalReg().WithEngine(model.EngineSurvival, nil),
		model.SurvivalReg().WithEngine(model.EngineFlexsurv, nil),
		model.ProportionalHazards().WithEngine(model.EngineSurvival, nil),
		glmnetSpec(),
	}
}

func TestEveryCombinationPredictsOneRowPerInput(t *testing.T) {
	reg := engines.MustDefault()
	r := newRouter()
	data := newData(t)

	for _, spec := range allSpecs() {
		m := fitModel(t, spec)
		for _, typ := range reg.Types(spec.Family, spec.Engine) {
			t.Run(string(spec.Family)+"/"+string(spec.Engine)+"/"+string(typ), func(t *testing.T) {
				opts := model.PredictOptions{Type: typ}
				if typ.NeedsEvalTime() {
					opts.EvalTime = []float64{1, 5, 10}
				}
				res, err := r.Predict(context.Background(), m, data, opts)
				if err != nil {
					t.Fatalf("Predict() error = %v", err)
				}
				if res.Len() != 3 {
					t.Errorf("Predict() returned %d rows, want 3", res.Len())
				}
				if res.Type != typ {
					t.Errorf("Type = %q, want %q", res.Type, typ)
				}
				switch typ {
				case model.TypeTime:
					if res.Column != model.ColumnTime {
						t.Errorf("Column = %q", res.Column)
					}
				case model.TypeLinearPred:
					if res.Column != model.ColumnLinearPred {
						t.Errorf("Column = %q", res.Column)
					}
				default:
					if res.Column != model.ColumnNested || res.ValueName != model.ValueColumn(typ) {
						t.Errorf("Column = %q, ValueName = %q", res.Column, res.ValueName)
					}
				}
			})
		}
	}
}

func TestLinearPredictorSignIsConsistent(t *testing.T) {
	r := newRouter()
	data := newData(t)

	for _, spec := range allSpecs() {
		t.Run(string(spec.Family)+"/"+string(spec.Engine), func(t *testing.T) {
			m := fitModel(t, spec)
			lp, err := r.Predict(context.Background(), m, data, model.PredictOptions{Type: model.TypeLinearPred})
			if err != nil {
				t.Fatalf("Predict(linear_pred) error = %v", err)
			}
			tm, err := r.Predict(context.Background(), m, data, model.PredictOptions{Type: model.TypeTime})
			if err != nil {
				t.Fatalf("Predict(time) error = %v", err)
			}
			for i := 1; i < 3; i++ {
				if !(lp.Scalars[i] > lp.Scalars[i-1]) {
					t.Errorf("linear predictor should increase with expected survival: %v", lp.Scalars)
				}
				if !(tm.Scalars[i] > tm.Scalars[i-1]) {
					t.Errorf("predicted time should increase with age: %v", tm.Scalars)
				}
			}
		})
	}
}

func TestCurvesPreserveRequestedTimes(t *testing.T) {
	r := newRouter()
	data := newData(t)
	times := []float64{10, 1, 5, 1}

	for _, spec := range allSpecs() {
		t.Run(string(spec.Family)+"/"+string(spec.Engine), func(t *testing.T) {
			m := fitModel(t, spec)
			res, err := r.Predict(context.Background(), m, data, model.PredictOptions{Type: model.TypeSurvival, EvalTime: times})
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			for i, curve := range res.Curves {
				if len(curve) != len(times) {
					t.Fatalf("row %d has %d points, want %d", i, len(curve), len(times))
				}
				for k, p := range curve {
					if p.At != times[k] {
						t.Errorf("row %d point %d at %v, want %v", i, k, p.At, times[k])
					}
					if p.Value < 0 || p.Value > 1 {
						t.Errorf("row %d survival %v out of [0, 1]", i, p.Value)
					}
				}
				// S(1) >= S(5) >= S(10)
				if curve[1].Value < curve[2].Value || curve[2].Value < curve[0].Value {
					t.Errorf("row %d survival not monotone: %v", i, curve)
				}
				if curve[1].Value != curve[3].Value {
					t.Errorf("row %d duplicate times differ: %v", i, curve)
				}
			}
		})
	}
}

func TestQuantileDefaultsAndOrder(t *testing.T) {
	r := newRouter()
	m := fitModel(t, model.SurvivalReg().WithEngine(model.EngineFlexsurv, nil))

	res, err := r.Predict(context.Background(), m, newData(t), model.PredictOptions{Type: model.TypeQuantile})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if res.KeyName != model.KeyQuantile || len(res.Curves[0]) != len(model.DefaultQuantiles) {
		t.Fatalf("unexpected quantile result: key=%q points=%d", res.KeyName, len(res.Curves[0]))
	}

	res, err = r.Predict(context.Background(), m, newData(t), model.PredictOptions{Type: model.TypeQuantile, Quantile: []float64{0.9, 0.5}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	c := res.Curves[0]
	if c[0].At != 0.9 || c[1].At != 0.5 || !(c[0].Value > c[1].Value) {
		t.Errorf("quantile curve = %v", c)
	}
}

func TestPredictErrors(t *testing.T) {
	r := newRouter()
	data := newData(t)
	cox := fitModel(t, model.ProportionalHazards().WithEngine(model.EngineSurvival, nil))
	aft := fitModel(t, model.SurvivalReg().WithEngine(model.EngineSurvival, nil))

	unseen, err := frame.New(frame.Numeric("age", 1), frame.Nominal("group", "z"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		m     *model.FittedModel
		data  *frame.Frame
		opts  model.PredictOptions
		check func(error) bool
	}{
		{name: "unsupported type", m: cox, data: data, opts: model.PredictOptions{Type: model.TypeHazard, EvalTime: []float64{1}}, check: model.IsConfiguration},
		{name: "unknown type", m: aft, data: data, opts: model.PredictOptions{Type: "class"}, check: model.IsInvalidArgument},
		{name: "missing eval time", m: aft, data: data, opts: model.PredictOptions{Type: model.TypeSurvival}, check: model.IsInvalidArgument},
		{name: "negative eval time", m: aft, data: data, opts: model.PredictOptions{Type: model.TypeHazard, EvalTime: []float64{-1}}, check: model.IsInvalidArgument},
		{name: "quantile out of range", m: aft, data: data, opts: model.PredictOptions{Type: model.TypeQuantile, Quantile: []float64{1.5}}, check: model.IsInvalidArgument},
		{name: "penalty on standard model", m: aft, data: data, opts: model.PredictOptions{Type: model.TypeTime, Penalty: ptr(0.1)}, check: model.IsInvalidArgument},
		{name: "unseen level", m: aft, data: unseen, opts: model.PredictOptions{Type: model.TypeTime}, check: model.IsInvalidArgument},
		{name: "nil data", m: aft, data: nil, opts: model.PredictOptions{Type: model.TypeTime}, check: model.IsInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Predict(context.Background(), tt.m, tt.data, tt.opts)
			if err == nil || !tt.check(err) {
				t.Errorf("Predict() error = %v, wrong or missing classification", err)
			}
		})
	}

	_, err = r.Predict(context.Background(), cox, data, model.PredictOptions{Type: model.TypeHazard, EvalTime: []float64{1}})
	if !errors.Is(err, &model.Error{Kind: model.KindConfiguration, Code: model.ErrCodeUnsupportedPrediction}) {
		t.Errorf("unsupported type error code: %v", err)
	}

	_, err = r.Predict(context.Background(), aft, nil, model.PredictOptions{Type: model.TypeTime})
	if !errors.Is(err, &model.Error{Kind: model.KindInvalidArgument, Code: model.ErrCodeMissingArgument}) {
		t.Errorf("nil data error code: %v", err)
	}
}

func TestPredictFailedFit(t *testing.T) {
	spec := model.SurvivalReg().WithEngine(model.EngineFlexsurv, nil).WithArg(model.ArgDist, model.Value("gompertz"))
	m, err := fit.NewFitter(engines.MustDefault(), nil, fit.Options{CatchErrors: true}).
		Fit(context.Background(), spec, form, trainingFrame(t))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	_, err = newRouter().Predict(context.Background(), m, newData(t), model.PredictOptions{Type: model.TypeTime})
	if !model.IsNativeFitFailure(err) {
		t.Fatalf("Predict() error = %v, want native fit failure", err)
	}
	var me *model.Error
	if !errors.As(err, &me) || me.Message != "model fit failed" {
		t.Errorf("error message = %v", err)
	}
}

func ptr(v float64) *float64 { return &v }

func TestPathStrengthSelection(t *testing.T) {
	r := newRouter()
	data := newData(t)
	lp := model.PredictOptions{Type: model.TypeLinearPred}

	t.Run("no strength on multi-value path", func(t *testing.T) {
		m := fitModel(t, model.ProportionalHazards().WithEngine(model.EngineGlmnet, nil))
		if _, err := r.Predict(context.Background(), m, data, lp); !model.IsAmbiguousStrength(err) {
			t.Errorf("Predict() error = %v, want ambiguous strength", err)
		}
		opts := lp
		opts.Penalty = ptr(m.PathPenalties()[2])
		if _, err := r.Predict(context.Background(), m, data, opts); err != nil {
			t.Errorf("Predict() with explicit penalty error = %v", err)
		}
	})

	t.Run("single-value path", func(t *testing.T) {
		spec := model.ProportionalHazards().WithEngine(model.EngineGlmnet, map[string]model.Arg{
			"path_values": model.Value([]float64{0.05}),
		})
		m := fitModel(t, spec)

		def, err := r.Predict(context.Background(), m, data, lp)
		if err != nil {
			t.Fatalf("Predict() default error = %v", err)
		}
		opts := lp
		opts.Penalty = ptr(0.05)
		exp, err := r.Predict(context.Background(), m, data, opts)
		if err != nil {
			t.Fatalf("Predict() explicit error = %v", err)
		}
		for i := range def.Scalars {
			if def.Scalars[i] != exp.Scalars[i] {
				t.Errorf("row %d: default %v, explicit %v", i, def.Scalars[i], exp.Scalars[i])
			}
		}

		opts.Penalty = ptr(0.1)
		if _, err := r.Predict(context.Background(), m, data, opts); !model.IsIncompatibleStrength(err) {
			t.Errorf("Predict() other strength error = %v, want incompatible strength", err)
		}
	})
}

func TestMultiPredictMatchesSinglePredictions(t *testing.T) {
	r := newRouter()
	data := newData(t)
	m := fitModel(t, glmnetSpec())
	path := m.PathPenalties()
	strengths := []float64{path[1], path[len(path)-1], path[len(path)/2]}

	for _, typ := range []model.PredictionType{model.TypeLinearPred, model.TypeSurvival, model.TypeTime} {
		t.Run(string(typ), func(t *testing.T) {
			opts := model.PredictOptions{Type: typ, Multi: true, Penalties: strengths}
			if typ.NeedsEvalTime() {
				opts.EvalTime = []float64{2, 8}
			}
			multi, err := r.Predict(context.Background(), m, data, opts)
			if err != nil {
				t.Fatalf("multi Predict() error = %v", err)
			}
			if multi.Len() != 3 || multi.KeyName != model.KeyPenalty {
				t.Fatalf("multi result rows = %d key = %q", multi.Len(), multi.KeyName)
			}

			for i, row := range multi.Paths {
				if len(row) != len(strengths) {
					t.Fatalf("row %d has %d entries, want %d", i, len(row), len(strengths))
				}
				for k := 1; k < len(row); k++ {
					if row[k].Penalty < row[k-1].Penalty {
						t.Errorf("row %d not sorted by penalty: %v", i, row)
					}
				}
				for _, pt := range row {
					single := model.PredictOptions{Type: typ, EvalTime: opts.EvalTime, Penalty: ptr(pt.Penalty)}
					direct, err := r.Predict(context.Background(), m, data, single)
					if err != nil {
						t.Fatalf("single Predict() error = %v", err)
					}
					if typ == model.TypeSurvival {
						for j, c := range pt.Curve {
							if math.Abs(c.Value-direct.Curves[i][j].Value) > 1e-12 {
								t.Errorf("row %d penalty %v: multi %v, direct %v", i, pt.Penalty, c.Value, direct.Curves[i][j].Value)
							}
						}
						continue
					}
					if math.Abs(pt.Value-direct.Scalars[i]) > 1e-12 {
						t.Errorf("row %d penalty %v: multi %v, direct %v", i, pt.Penalty, pt.Value, direct.Scalars[i])
					}
				}
			}
		})
	}
}

func TestMultiRejectsOutOfRange(t *testing.T) {
	m := fitModel(t, glmnetSpec())
	path := m.PathPenalties()
	_, err := newRouter().Predict(context.Background(), m, newData(t), model.PredictOptions{
		Type:      model.TypeLinearPred,
		Multi:     true,
		Penalties: []float64{path[0] * 10},
	})
	if !model.IsIncompatibleStrength(err) {
		t.Errorf("Predict() error = %v, want incompatible strength", err)
	}
}

func TestConcurrentPredictions(t *testing.T) {
	r := newRouter()
	data := newData(t)
	m := fitModel(t, glmnetSpec())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Predict(context.Background(), m, data, model.PredictOptions{Type: model.TypeSurvival, EvalTime: []float64{3}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Predict() error = %v", err)
		}
	}
}
