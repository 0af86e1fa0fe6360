package engines

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/natives/coxnet"
)

func TestDefaultRegistersBuiltins(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if again := MustDefault(); again != reg {
		t.Error("Default() should return the same registry on every call")
	}

	all := []model.PredictionType{model.TypeTime, model.TypeSurvival, model.TypeHazard, model.TypeQuantile, model.TypeLinearPred}
	cox := []model.PredictionType{model.TypeTime, model.TypeSurvival, model.TypeLinearPred}

	tests := []struct {
		family model.Family
		engine model.EngineName
		kind   model.EngineKind
		types  []model.PredictionType
	}{
		{model.FamilyProportionalHazards, model.EngineGlmnet, model.EngineKindPath, cox},
		{model.FamilyProportionalHazards, model.EngineSurvival, model.EngineKindStandard, cox},
		{model.FamilySurvivalReg, model.EngineFlexsurv, model.EngineKindStandard, all},
		{model.FamilySurvivalReg, model.EngineSurvival, model.EngineKindStandard, all},
	}

	engines := reg.Engines()
	if len(engines) != len(tests) {
		t.Fatalf("Engines() returned %d entries, want %d", len(engines), len(tests))
	}
	for i, tt := range tests {
		got := engines[i]
		if got.Family != tt.family || got.Engine != tt.engine || got.Kind != tt.kind {
			t.Errorf("engine %d = %s/%s (%s), want %s/%s (%s)", i, got.Family, got.Engine, got.Kind, tt.family, tt.engine, tt.kind)
		}
		if !reflect.DeepEqual(got.Types, tt.types) {
			t.Errorf("%s/%s types = %v, want %v", tt.family, tt.engine, got.Types, tt.types)
		}
	}
}

func TestGlmnetRecipe(t *testing.T) {
	rec, err := MustDefault().Lookup(model.FamilyProportionalHazards, model.EngineGlmnet)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	m, ok := rec.ArgFor(model.ArgPenalty)
	if !ok || m.Native != "lambda" || !m.Drop {
		t.Errorf("penalty mapping = %+v, want dropped lambda", m)
	}
	if !rec.Encoding.RemoveIntercept || !rec.Encoding.AllowSparseX {
		t.Errorf("unexpected encoding %+v", rec.Encoding)
	}

	pred, err := MustDefault().Prediction(model.FamilyProportionalHazards, model.EngineGlmnet, model.TypeLinearPred)
	if err != nil {
		t.Fatalf("Prediction() error = %v", err)
	}
	if !pred.Batch {
		t.Error("glmnet linear_pred should predict all strengths in one call")
	}

	if _, err := MustDefault().Prediction(model.FamilyProportionalHazards, model.EngineGlmnet, model.TypeHazard); !model.IsConfiguration(err) {
		t.Errorf("hazard for glmnet error = %v, want configuration error", err)
	}
}

func TestPathModelTraining(t *testing.T) {
	x := [][]float64{{1, 0}, {0, 1}, {1, 1}, {0, 0}, {2, 1}, {1, 2}}
	time := []float64{5, 8, 3, 10, 2, 6}
	status := []float64{1, 1, 1, 0, 1, 0}

	fit, err := coxnet.Train(x, []string{"a", "b"}, time, status, coxnet.Options{Alpha: 1, NLambda: 5})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	pm := &pathModel{Fit: fit}

	td := pm.DetachTraining()
	if td == nil || len(td.X) != len(x) || !reflect.DeepEqual(td.Columns, []string{"a", "b"}) {
		t.Fatalf("DetachTraining() = %+v", td)
	}
	if pm.Data != nil {
		t.Error("training copy should be removed from the native fit")
	}
	if pm.DetachTraining() != nil {
		t.Error("second detach should return nil")
	}

	data, err := json.Marshal(pm)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	rec, _ := MustDefault().Lookup(model.FamilyProportionalHazards, model.EngineGlmnet)
	restored, err := rec.Fit.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	rp, ok := restored.(*pathModel)
	if !ok {
		t.Fatalf("Decode() returned %T", restored)
	}
	if !reflect.DeepEqual(rp.Penalties(), fit.Penalties()) {
		t.Errorf("restored path = %v, want %v", rp.Penalties(), fit.Penalties())
	}

	rp.AttachTraining(td)
	if rp.Data == nil || len(rp.Data.Time) != len(time) {
		t.Error("AttachTraining() did not restore the training copy")
	}
}
