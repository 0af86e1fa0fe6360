package stores

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tidysurv/censored/pkg/engines"
	"github.com/tidysurv/censored/pkg/fit"
	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/frame"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := engines.Default()
	if err != nil {
		t.Fatalf("engines.Default() error = %v", err)
	}
	return reg
}

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path:     ":memory:",
		Registry: testRegistry(t),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func trainingFrame(t *testing.T) *frame.Frame {
	t.Helper()
	const n = 30
	tm := make([]float64, n)
	st := make([]float64, n)
	age := make([]float64, n)
	for i := 0; i < n; i++ {
		age[i] = float64(i%7) - 3
		tm[i] = (1 + float64((i*11)%13)) * math.Exp(0.2*age[i])
		if i%5 != 0 {
			st[i] = 1
		}
	}
	fr, err := frame.New(
		frame.Numeric("time", tm...),
		frame.Numeric("status", st...),
		frame.Numeric("age", age...),
	)
	if err != nil {
		t.Fatalf("frame.New() error = %v", err)
	}
	return fr
}

func fitModel(t *testing.T, store *SQLiteStore, spec model.Spec, opts fit.Options) *model.FittedModel {
	t.Helper()
	f := fit.NewFitter(store.registry, nil, opts)
	m, err := f.Fit(context.Background(), spec, formula.MustParse("Surv(time, status) ~ age"), trainingFrame(t))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return m
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check should fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("NewSQLiteStore() should require a path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"fits", "predictions"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() should be a no-op, got %v", err)
	}
}

func TestFileStoreMigrates(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "fits.db")})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
}

func TestSaveAndGetFit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		spec model.Spec
	}{
		{name: "aft", spec: model.SurvivalReg().WithEngine(model.EngineSurvival, nil)},
		{name: "cox", spec: model.ProportionalHazards().WithEngine(model.EngineSurvival, nil)},
		{name: "path", spec: model.ProportionalHazards().WithEngine(model.EngineGlmnet, nil).WithPenalty(0.01)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fitModel(t, store, tt.spec, fit.Options{})
			if err := store.SaveFit(ctx, m); err != nil {
				t.Fatalf("SaveFit() error = %v", err)
			}

			got, err := store.GetFit(ctx, m.ID)
			if err != nil {
				t.Fatalf("GetFit() error = %v", err)
			}
			if got.ID != m.ID || got.Kind != m.Kind || got.Spec.Engine != m.Spec.Engine {
				t.Errorf("identity changed: %s/%s/%s", got.ID, got.Kind, got.Spec.Engine)
			}
			if reflect.TypeOf(got.Native) != reflect.TypeOf(m.Native) {
				t.Errorf("native type = %T, want %T", got.Native, m.Native)
			}
			if !reflect.DeepEqual(got.PathPenalties(), m.PathPenalties()) {
				t.Errorf("path = %v, want %v", got.PathPenalties(), m.PathPenalties())
			}

			rec, err := store.GetFitRecord(ctx, m.ID)
			if err != nil {
				t.Fatalf("GetFitRecord() error = %v", err)
			}
			if rec.Status != StatusOK || rec.Error != nil {
				t.Errorf("status = %s, error = %v", rec.Status, rec.Error)
			}
			if rec.Formula != "Surv(time, status) ~ age" || rec.Family != tt.spec.Family {
				t.Errorf("record = %+v", rec)
			}
			if rec.Elapsed != m.Elapsed {
				t.Errorf("elapsed = %v, want %v", rec.Elapsed, m.Elapsed)
			}
		})
	}

	fits, err := store.ListFits(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListFits() error = %v", err)
	}
	if len(fits) != len(tests) {
		t.Errorf("ListFits() returned %d fits, want %d", len(fits), len(tests))
	}

	page, err := store.ListFits(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListFits() error = %v", err)
	}
	if len(page) != 1 {
		t.Errorf("paged ListFits() returned %d fits, want 1", len(page))
	}
}

func TestSaveFailedFit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	spec := model.SurvivalReg().WithEngine(model.EngineSurvival, nil).WithArg(model.ArgDist, model.Value("lognormal"))
	m := fitModel(t, store, spec, fit.Options{CatchErrors: true})
	if !m.Failed() {
		t.Fatal("expected a captured fit failure")
	}

	if err := store.SaveFit(ctx, m); err != nil {
		t.Fatalf("SaveFit() error = %v", err)
	}

	rec, err := store.GetFitRecord(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetFitRecord() error = %v", err)
	}
	if rec.Status != StatusFailed || rec.Error == nil || *rec.Error != m.FitErr.Error() {
		t.Errorf("record = %+v", rec)
	}

	got, err := store.GetFit(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetFit() error = %v", err)
	}
	if !model.IsNativeFitFailure(got.Err()) {
		t.Errorf("restored Err() = %v, want native fit failure", got.Err())
	}
}

func TestFitNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetFit(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFit() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetFitRecord(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFitRecord() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteFit(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteFit() error = %v, want ErrNotFound", err)
	}
	if err := store.SaveFit(ctx, &model.FittedModel{}); err == nil {
		t.Error("SaveFit() should reject a model without an id")
	}
}

func TestGetFitRequiresRegistry(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetFit(context.Background(), "any"); err == nil {
		t.Error("GetFit() without a registry should fail")
	}
}

func TestSaveFitIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := fitModel(t, store, model.SurvivalReg().WithEngine(model.EngineSurvival, nil), fit.Options{})
	if err := store.SaveFit(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordPrediction(ctx, &PredictionRecord{FitID: m.ID, Type: model.TypeTime, Rows: 3}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveFit(ctx, m); err != nil {
		t.Fatalf("second SaveFit() error = %v", err)
	}

	fits, err := store.ListFits(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 1 {
		t.Errorf("ListFits() returned %d fits, want 1", len(fits))
	}
	preds, err := store.ListPredictions(ctx, m.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 1 {
		t.Errorf("re-saving a fit should keep its audit trail, got %d entries", len(preds))
	}
}

func TestPredictionAudit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := fitModel(t, store, model.ProportionalHazards().WithEngine(model.EngineGlmnet, nil), fit.Options{})
	if err := store.SaveFit(ctx, m); err != nil {
		t.Fatal(err)
	}

	msg := "eval_time is required"
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []*PredictionRecord{
		{FitID: m.ID, Type: model.TypeLinearPred, Rows: 5, Elapsed: time.Millisecond, Timestamp: base},
		{FitID: m.ID, Type: model.TypeSurvival, Rows: 5, Multi: true, Penalties: []float64{0.1, 0.01}, Timestamp: base.Add(time.Second)},
		{FitID: m.ID, Type: model.TypeHazard, Error: &msg, Timestamp: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := store.RecordPrediction(ctx, rec); err != nil {
			t.Fatalf("RecordPrediction() error = %v", err)
		}
		if rec.ID == 0 {
			t.Error("RecordPrediction() should assign an id")
		}
	}

	got, err := store.ListPredictions(ctx, m.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListPredictions() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListPredictions() returned %d entries, want 3", len(got))
	}

	// Most recent first.
	if got[0].Type != model.TypeHazard || got[0].Status != StatusFailed || got[0].Error == nil || *got[0].Error != msg {
		t.Errorf("latest entry = %+v", got[0])
	}
	if !got[1].Multi || !reflect.DeepEqual(got[1].Penalties, []float64{0.1, 0.01}) {
		t.Errorf("multi entry = %+v", got[1])
	}
	if got[2].Status != StatusOK || got[2].Elapsed != time.Millisecond || !got[2].Timestamp.Equal(base) {
		t.Errorf("first entry = %+v", got[2])
	}

	if err := store.RecordPrediction(ctx, &PredictionRecord{FitID: "unknown", Type: model.TypeTime}); err == nil {
		t.Error("RecordPrediction() should reject an unknown fit")
	}

	if err := store.DeleteFit(ctx, m.ID); err != nil {
		t.Fatalf("DeleteFit() error = %v", err)
	}
	got, err = store.ListPredictions(ctx, m.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("deleting a fit should remove its audit trail, %d entries left", len(got))
	}
}
