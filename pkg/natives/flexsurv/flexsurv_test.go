package flexsurv

import (
	"math"
	"testing"
)

func TestTrainGroupRates(t *testing.T) {
	x := [][]float64{{1, 0}, {1, 0}, {1, 0}, {1, 1}, {1, 1}, {1, 1}, {1, 1}}
	time := []float64{2, 4, 6, 5, 10, 15, 20}
	status := []float64{1, 1, 0, 1, 0, 1, 1}

	fit, err := Train(x, []string{"(Intercept)", "grp"}, time, status, "exp")
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	want := []float64{math.Log(2.0 / 12), math.Log(3.0/50) - math.Log(2.0/12)}
	for j := range want {
		if math.Abs(fit.Gamma[j]-want[j]) > 1e-6 {
			t.Errorf("gamma[%d] = %v, want %v", j, fit.Gamma[j], want[j])
		}
	}

	mean, err := fit.Summary([][]float64{{1, 0}}, TypeMean, nil)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if math.Abs(mean[0].Est[0]-6) > 1e-5 {
		t.Errorf("mean = %v, want 6", mean[0].Est[0])
	}
}

func TestSummaryPreservesKeys(t *testing.T) {
	fit := &Fit{Dist: "exp", Gamma: []float64{math.Log(0.1)}, Columns: []string{"(Intercept)"}}
	at := []float64{10, 1, 10}

	tabs, err := fit.Summary([][]float64{{1}, {1}}, TypeSurvival, at)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if len(tabs) != 2 {
		t.Fatalf("tables = %d, want 2", len(tabs))
	}
	for k, v := range at {
		if tabs[0].Time[k] != v {
			t.Errorf("Time[%d] = %v, want %v", k, tabs[0].Time[k], v)
		}
		if want := math.Exp(-0.1 * v); math.Abs(tabs[0].Est[k]-want) > 1e-12 {
			t.Errorf("Est[%d] = %v, want %v", k, tabs[0].Est[k], want)
		}
	}

	q, err := fit.Summary([][]float64{{1}}, TypeQuantile, []float64{0.5})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if q[0].Quantile[0] != 0.5 || math.Abs(q[0].Est[0]-10*math.Ln2) > 1e-9 {
		t.Errorf("quantile table = %+v", q[0])
	}
}

func TestTrainUnknownDist(t *testing.T) {
	if _, err := Train([][]float64{{1}}, []string{"(Intercept)"}, []float64{1}, []float64{1}, "gompertz"); err == nil {
		t.Fatal("expected error")
	}
}
