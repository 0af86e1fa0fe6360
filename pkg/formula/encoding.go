package formula

import (
	"fmt"
	"math"
	"sort"

	"github.com/tidysurv/censored/pkg/frame"
)

// InterceptColumn is the name of the computed intercept column.
const InterceptColumn = "(Intercept)"

// Indicators selects how nominal predictors are expanded.
type Indicators string

const (
	// IndicatorsTraditional expands a factor with k levels into k-1 dummies.
	IndicatorsTraditional Indicators = "traditional"

	// IndicatorsOneHot expands a factor with k levels into k dummies.
	IndicatorsOneHot Indicators = "one_hot"

	// IndicatorsNone leaves predictors as-is; nominal predictors are rejected.
	IndicatorsNone Indicators = "none"
)

// Encoding describes how an engine wants its predictors built.
type Encoding struct {
	PredictorIndicators Indicators `json:"predictor_indicators"`
	ComputeIntercept    bool       `json:"compute_intercept"`
	RemoveIntercept     bool       `json:"remove_intercept"`
	AllowSparseX        bool       `json:"allow_sparse_x"`
}

// Design is a dense row-major predictor matrix.
type Design struct {
	Columns []string
	X       [][]float64
}

// NRow returns the number of rows.
func (d *Design) NRow() int {
	return len(d.X)
}

// Outcome holds the censored response.
type Outcome struct {
	Time   []float64
	Status []float64
}

// Events returns the number of observed events.
func (o *Outcome) Events() int {
	n := 0
	for _, s := range o.Status {
		if s != 0 {
			n++
		}
	}
	return n
}

// MaxTime returns the largest follow-up time.
func (o *Outcome) MaxTime() float64 {
	m := 0.0
	for _, t := range o.Time {
		m = math.Max(m, t)
	}
	return m
}

// Blueprint records everything needed to rebuild a design matrix for new
// data with the variable names of the original formula.
type Blueprint struct {
	Formula    string              `json:"formula"`
	Time       string              `json:"time"`
	Event      string              `json:"event"`
	Predictors []string            `json:"predictors"`
	Levels     map[string][]string `json:"levels,omitempty"`
	Encoding   Encoding            `json:"encoding"`
	Columns    []string            `json:"columns"`
}

// Mold resolves the formula against training data and builds the blueprint,
// the training design matrix and the outcome.
func Mold(f *Formula, fr *frame.Frame, enc Encoding) (*Blueprint, *Design, *Outcome, error) {
	if fr.NRow() == 0 {
		return nil, nil, nil, fmt.Errorf("training data has no rows")
	}

	predictors, err := f.Predictors(fr)
	if err != nil {
		return nil, nil, nil, err
	}

	outcome, err := moldOutcome(f, fr)
	if err != nil {
		return nil, nil, nil, err
	}

	bp := &Blueprint{
		Formula:    f.Raw,
		Time:       f.Time,
		Event:      f.Event,
		Predictors: predictors,
		Levels:     make(map[string][]string),
		Encoding:   enc,
	}

	for _, name := range predictors {
		col, _ := fr.Column(name)
		if col.Kind != frame.KindNominal {
			continue
		}
		if enc.PredictorIndicators == IndicatorsNone {
			return nil, nil, nil, fmt.Errorf("predictor %q is nominal but the engine accepts numeric predictors only", name)
		}
		bp.Levels[name] = levels(col.Str)
	}

	bp.Columns = bp.columnNames()

	design, err := bp.Forge(fr)
	if err != nil {
		return nil, nil, nil, err
	}

	return bp, design, outcome, nil
}

func moldOutcome(f *Formula, fr *frame.Frame) (*Outcome, error) {
	times, err := fr.Float(f.Time)
	if err != nil {
		return nil, err
	}
	status, err := fr.Float(f.Event)
	if err != nil {
		return nil, err
	}

	for i, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
			return nil, fmt.Errorf("row %d: follow-up time must be positive and finite, got %v", i+1, t)
		}
		if status[i] != 0 && status[i] != 1 {
			return nil, fmt.Errorf("row %d: event indicator must be 0 or 1, got %v", i+1, status[i])
		}
	}

	return &Outcome{
		Time:   append([]float64(nil), times...),
		Status: append([]float64(nil), status...),
	}, nil
}

func levels(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Blueprint) columnNames() []string {
	var cols []string
	if b.Encoding.ComputeIntercept && !b.Encoding.RemoveIntercept {
		cols = append(cols, InterceptColumn)
	}
	for _, name := range b.Predictors {
		lv, nominal := b.Levels[name]
		if !nominal {
			cols = append(cols, name)
			continue
		}
		for _, l := range b.dummyLevels(lv) {
			cols = append(cols, name+l)
		}
	}
	return cols
}

// dummyLevels returns the levels that get their own indicator column.
func (b *Blueprint) dummyLevels(lv []string) []string {
	if b.Encoding.PredictorIndicators == IndicatorsOneHot {
		return lv
	}
	return lv[1:]
}

// Forge builds the design matrix for new data using the stored blueprint.
// Missing predictor columns and unseen factor levels are errors.
func (b *Blueprint) Forge(fr *frame.Frame) (*Design, error) {
	n := fr.NRow()
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, 0, len(b.Columns))
		if b.Encoding.ComputeIntercept && !b.Encoding.RemoveIntercept {
			x[i] = append(x[i], 1)
		}
	}

	for _, name := range b.Predictors {
		col, ok := fr.Column(name)
		if !ok {
			return nil, fmt.Errorf("predictor column %q not found in new data", name)
		}

		lv, nominal := b.Levels[name]
		if !nominal {
			if col.Kind != frame.KindNumeric {
				return nil, fmt.Errorf("predictor %q was numeric at fit time but is %s", name, col.Kind)
			}
			for i, v := range col.Num {
				if math.IsNaN(v) {
					return nil, fmt.Errorf("predictor %q has a missing value in row %d", name, i+1)
				}
				x[i] = append(x[i], v)
			}
			continue
		}

		if col.Kind != frame.KindNominal {
			return nil, fmt.Errorf("predictor %q was nominal at fit time but is %s", name, col.Kind)
		}
		dummies := b.dummyLevels(lv)
		known := make(map[string]bool, len(lv))
		for _, l := range lv {
			known[l] = true
		}
		for i, v := range col.Str {
			if !known[v] {
				return nil, fmt.Errorf("predictor %q has level %q not seen at fit time", name, v)
			}
			for _, l := range dummies {
				if v == l {
					x[i] = append(x[i], 1)
				} else {
					x[i] = append(x[i], 0)
				}
			}
		}
	}

	return &Design{Columns: append([]string(nil), b.Columns...), X: x}, nil
}
