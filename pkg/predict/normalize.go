package predict

import (
	"fmt"
	"math"

	"github.com/tidysurv/censored/pkg/model"
)

// Scalars coerces a column vector or an n by 1 matrix into one value per row.
func Scalars(raw interface{}) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return append([]float64(nil), v...), nil
	case [][]float64:
		out := make([]float64, len(v))
		for i, row := range v {
			if len(row) != 1 {
				return nil, fmt.Errorf("row %d has %d columns, want 1", i+1, len(row))
			}
			out[i] = row[0]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to one value per row", raw)
	}
}

// Negate flips the sign of each value. Used where a native linear predictor
// increases with risk.
func Negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
		if out[i] == 0 {
			out[i] = 0
		}
	}
	return out
}

// MatrixCurves converts a row by key matrix into per-row curves.
func MatrixCurves(m [][]float64, keys []float64) ([][]model.Point, error) {
	out := make([][]model.Point, len(m))
	for i, row := range m {
		if len(row) != len(keys) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i+1, len(row), len(keys))
		}
		out[i] = make([]model.Point, len(keys))
		for k, key := range keys {
			out[i][k] = model.Point{At: key, Value: row[k]}
		}
	}
	return out, nil
}

// Nested is one observation's native table of key and value pairs.
type Nested struct {
	Keys   []float64
	Values []float64
}

// NestedCurves matches each requested key against a per-row native table.
// Keys are matched positionally when the table echoes the request and by
// value otherwise, so duplicates and ordering survive either way.
func NestedCurves(rows []Nested, keys []float64) ([][]model.Point, error) {
	out := make([][]model.Point, len(rows))
	for i, row := range rows {
		if len(row.Keys) != len(row.Values) {
			return nil, fmt.Errorf("row %d: %d keys but %d values", i+1, len(row.Keys), len(row.Values))
		}
		out[i] = make([]model.Point, len(keys))
		for k, key := range keys {
			idx := -1
			if k < len(row.Keys) && row.Keys[k] == key {
				idx = k
			} else {
				for j, rk := range row.Keys {
					if rk == key {
						idx = j
						break
					}
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("row %d: no value for key %v", i+1, key)
			}
			out[i][k] = model.Point{At: key, Value: row.Values[idx]}
		}
	}
	return out, nil
}

// StepCurves evaluates right-continuous step functions at the requested
// times. times must be increasing and surv is indexed [time][row]. Before
// the first step the value is 1; after the last it stays at the last value.
func StepCurves(times []float64, surv [][]float64, nrow int, at []float64) ([][]model.Point, error) {
	if len(surv) != len(times) {
		return nil, fmt.Errorf("%d step times but %d survival rows", len(times), len(surv))
	}
	for k := 1; k < len(times); k++ {
		if times[k] < times[k-1] {
			return nil, fmt.Errorf("step times are not sorted at position %d", k)
		}
	}

	idx := make([]int, len(at))
	for k, t := range at {
		idx[k] = stepIndex(times, t)
	}

	out := make([][]model.Point, nrow)
	for i := 0; i < nrow; i++ {
		out[i] = make([]model.Point, len(at))
		for k, t := range at {
			v := 1.0
			if idx[k] >= 0 {
				if len(surv[idx[k]]) != nrow {
					return nil, fmt.Errorf("survival row %d has %d columns, want %d", idx[k], len(surv[idx[k]]), nrow)
				}
				v = surv[idx[k]][i]
			}
			out[i][k] = model.Point{At: t, Value: v}
		}
	}
	return out, nil
}

// stepIndex returns the index of the last time <= t, or -1.
func stepIndex(times []float64, t float64) int {
	lo, hi := 0, len(times)
	for lo < hi {
		mid := (lo + hi) / 2
		if times[mid] <= t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// finite reports whether every value in a result is a real number. NaN
// and infinities from native routines are kept but logged.
func finite(r *model.Result) bool {
	check := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	for _, v := range r.Scalars {
		if !check(v) {
			return false
		}
	}
	for _, c := range r.Curves {
		for _, p := range c {
			if !check(p.Value) {
				return false
			}
		}
	}
	for _, row := range r.Paths {
		for _, p := range row {
			if !check(p.Value) {
				return false
			}
			for _, c := range p.Curve {
				if !check(c.Value) {
					return false
				}
			}
		}
	}
	return true
}
