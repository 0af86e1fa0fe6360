package model

import "encoding/json"

// Column names of standardized results.
const (
	ColumnTime       = ".pred_time"
	ColumnLinearPred = ".pred_linear_pred"
	ColumnNested     = ".pred"

	KeyEvalTime = ".eval_time"
	KeyQuantile = ".quantile"
	KeyPenalty  = "penalty"
)

// Point is one row of a nested curve: the key (evaluation time or quantile
// level) and the predicted value.
type Point struct {
	At    float64 `json:"at"`
	Value float64 `json:"value"`
}

// PathPoint is one row of a multi-strength prediction. Scalar types fill
// Value, curve types fill Curve.
type PathPoint struct {
	Penalty float64 `json:"penalty"`
	Value   float64 `json:"value"`
	Curve   []Point `json:"curve,omitempty"`
}

// MarshalJSON writes either the value or the curve. A zero value is kept.
func (p PathPoint) MarshalJSON() ([]byte, error) {
	if p.Curve != nil {
		return json.Marshal(struct {
			Penalty float64 `json:"penalty"`
			Curve   []Point `json:"curve"`
		}{p.Penalty, p.Curve})
	}
	return json.Marshal(struct {
		Penalty float64 `json:"penalty"`
		Value   float64 `json:"value"`
	}{p.Penalty, p.Value})
}

// Result is a standardized prediction with exactly one entry per input row.
// Exactly one of Scalars, Curves and Paths is set.
type Result struct {
	Type      PredictionType `json:"type"`
	Column    string         `json:"column"`
	KeyName   string         `json:"key_name,omitempty"`
	ValueName string         `json:"value_name,omitempty"`

	Scalars []float64     `json:"scalars,omitempty"`
	Curves  [][]Point     `json:"curves,omitempty"`
	Paths   [][]PathPoint `json:"paths,omitempty"`
}

// ValueColumn is the nested value column for a type, such as .pred_survival.
func ValueColumn(t PredictionType) string {
	return ".pred_" + string(t)
}

// NewScalarResult builds a one-column result for time or linear_pred.
func NewScalarResult(t PredictionType, values []float64) *Result {
	col := ColumnTime
	if t == TypeLinearPred {
		col = ColumnLinearPred
	}
	return &Result{Type: t, Column: col, Scalars: values}
}

// NewCurveResult builds a nested result for survival, hazard or quantile.
func NewCurveResult(t PredictionType, curves [][]Point) *Result {
	key := KeyEvalTime
	if t == TypeQuantile {
		key = KeyQuantile
	}
	return &Result{
		Type:      t,
		Column:    ColumnNested,
		KeyName:   key,
		ValueName: ValueColumn(t),
		Curves:    curves,
	}
}

// NewPathResult builds a nested result keyed by penalty.
func NewPathResult(t PredictionType, paths [][]PathPoint) *Result {
	return &Result{
		Type:      t,
		Column:    ColumnNested,
		KeyName:   KeyPenalty,
		ValueName: ValueColumn(t),
		Paths:     paths,
	}
}

// Len returns the number of rows.
func (r *Result) Len() int {
	switch {
	case r.Paths != nil:
		return len(r.Paths)
	case r.Curves != nil:
		return len(r.Curves)
	default:
		return len(r.Scalars)
	}
}

// Nested reports whether each row holds a table.
func (r *Result) Nested() bool {
	return r.Curves != nil || r.Paths != nil
}
