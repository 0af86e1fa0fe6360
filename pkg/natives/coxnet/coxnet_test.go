package coxnet

import (
	"math"
	"testing"
)

func sampleData() ([][]float64, []float64, []float64) {
	x := [][]float64{
		{0.5, 1}, {1.2, 0}, {-0.3, 1}, {2.0, 0}, {0.0, 1},
		{-1.1, 0}, {0.8, 1}, {1.5, 0}, {-0.6, 1}, {0.2, 0},
	}
	time := []float64{9, 4, 12, 2, 8, 15, 6, 3, 11, 7}
	status := []float64{1, 1, 0, 1, 1, 0, 1, 1, 1, 0}
	return x, time, status
}

func TestTrainPath(t *testing.T) {
	x, time, status := sampleData()

	fit, err := Train(x, []string{"x1", "x2"}, time, status, Options{Alpha: 1, NLambda: 10})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if len(fit.Lambda) != 10 || len(fit.Beta) != 10 {
		t.Fatalf("path length = %d/%d, want 10", len(fit.Lambda), len(fit.Beta))
	}
	for k := 1; k < len(fit.Lambda); k++ {
		if fit.Lambda[k] >= fit.Lambda[k-1] {
			t.Errorf("lambda not decreasing at %d: %v", k, fit.Lambda)
		}
	}
	for j, b := range fit.Beta[0] {
		if b != 0 {
			t.Errorf("beta[%d] at lambda max = %v, want 0", j, b)
		}
	}
	if fit.Beta[len(fit.Beta)-1][0] <= 0 {
		t.Errorf("x1 coefficient at smallest penalty = %v, want positive", fit.Beta[len(fit.Beta)-1][0])
	}
	if fit.Data == nil || len(fit.Data.X) != len(x) {
		t.Error("training copy not embedded")
	}
}

func TestTrainIncludesPenalty(t *testing.T) {
	x, time, status := sampleData()
	include := 0.0123

	fit, err := Train(x, []string{"x1", "x2"}, time, status, Options{
		Alpha:   0.5,
		Lambda:  []float64{0.1, 0.01, 0.05},
		Include: &include,
	})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	want := []float64{0.1, 0.05, 0.0123, 0.01}
	if len(fit.Lambda) != len(want) {
		t.Fatalf("Lambda = %v, want %v", fit.Lambda, want)
	}
	for k := range want {
		if fit.Lambda[k] != want[k] {
			t.Errorf("Lambda[%d] = %v, want %v", k, fit.Lambda[k], want[k])
		}
	}

	dup := 0.05
	fit, err = Train(x, []string{"x1", "x2"}, time, status, Options{Alpha: 0.5, Lambda: []float64{0.1, 0.05}, Include: &dup})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(fit.Lambda) != 2 {
		t.Errorf("duplicate penalty added: %v", fit.Lambda)
	}
}

func TestCoefInterpolates(t *testing.T) {
	fit := &Fit{
		Lambda:  []float64{0.3, 0.2, 0.1},
		Beta:    [][]float64{{0}, {1}, {3}},
		Columns: []string{"x"},
	}

	tests := []struct {
		s    float64
		want float64
	}{
		{0.3, 0},
		{0.2, 1},
		{0.15, 2},
		{0.1, 3},
		{0.5, 0},
		{0.01, 3},
	}
	for _, tt := range tests {
		if got := fit.Coef(tt.s)[0]; math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Coef(%v) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestPredictLinearAndSurvfit(t *testing.T) {
	x, time, status := sampleData()
	fit, err := Train(x, []string{"x1", "x2"}, time, status, Options{Alpha: 1, NLambda: 5})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	s := []float64{fit.Lambda[1], fit.Lambda[3]}
	lp, err := fit.PredictLinear([][]float64{{0, 0}, {1, 1}, {2, 0}}, s)
	if err != nil {
		t.Fatalf("PredictLinear() error = %v", err)
	}
	if len(lp) != 3 || len(lp[0]) != 2 {
		t.Fatalf("shape = %dx%d, want 3x2", len(lp), len(lp[0]))
	}
	if lp[0][0] != 0 || lp[0][1] != 0 {
		t.Errorf("zero row should have zero linear predictor: %v", lp[0])
	}

	sf, err := fit.Survfit([][]float64{{0, 0}, {2, 0}}, fit.Lambda[3], fit.Data)
	if err != nil {
		t.Fatalf("Survfit() error = %v", err)
	}
	if len(sf.Time) == 0 || len(sf.Surv[0]) != 2 {
		t.Fatalf("unexpected survfit shape")
	}

	if _, err := fit.Survfit([][]float64{{0, 0}}, fit.Lambda[0], nil); err == nil {
		t.Error("expected error without training data")
	}
}

func TestTrainValidation(t *testing.T) {
	x, time, status := sampleData()
	if _, err := Train(x, []string{"x1", "x2"}, time, status, Options{Alpha: 2}); err == nil {
		t.Error("expected error for alpha > 1")
	}
	if _, err := Train(x, []string{"x1", "x2"}, time, make([]float64, len(time)), Options{Alpha: 1}); err == nil {
		t.Error("expected error without events")
	}
	if _, err := Decode([]byte(`{"lambda":[0.1],"beta":[]}`)); err == nil {
		t.Error("expected error for inconsistent path")
	}
}
