// Package flexsurv fits fully parametric survival models parameterized by
// the log rate. Predictions come back as one small summary table per
// observation.
package flexsurv

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidysurv/censored/pkg/natives/linalg"
)

// Summary types.
const (
	TypeMean     = "mean"
	TypeSurvival = "survival"
	TypeHazard   = "hazard"
	TypeQuantile = "quantile"
)

// Table is the per-observation summary. Survival and hazard tables are
// keyed by Time, quantile tables by Quantile, mean tables have one Est.
type Table struct {
	Time     []float64 `json:"time,omitempty"`
	Quantile []float64 `json:"quantile,omitempty"`
	Est      []float64 `json:"est"`
}

// Fit is a fitted exponential model with rate exp(x·gamma).
type Fit struct {
	Dist       string    `json:"dist"`
	Gamma      []float64 `json:"gamma"`
	Columns    []string  `json:"columns"`
	LogLik     float64   `json:"loglik"`
	Iterations int       `json:"iterations"`
}

// Train fits the model by Newton-Raphson.
func Train(x [][]float64, columns []string, time, status []float64, dist string) (*Fit, error) {
	if dist == "" {
		dist = "exp"
	}
	if dist != "exp" && dist != "exponential" {
		return nil, fmt.Errorf("distribution %q is not available", dist)
	}
	if len(x) == 0 || len(x) != len(time) || len(time) != len(status) {
		return nil, errors.New("x, time and status must be non-empty and the same length")
	}

	var events, total float64
	for i := range time {
		events += status[i]
		total += time[i]
	}
	if events == 0 {
		return nil, errors.New("no events in training data")
	}

	p := len(x[0])
	gamma := make([]float64, p)
	for j, c := range columns {
		if c == "(Intercept)" {
			gamma[j] = math.Log(events / total)
		}
	}

	ll := loglik(x, time, status, gamma)
	iter := 0
	for ; iter < 100; iter++ {
		grad := make([]float64, p)
		info := linalg.Zeros(p)
		for i, row := range x {
			h := time[i] * math.Exp(linalg.Dot(row, gamma))
			for a := 0; a < p; a++ {
				grad[a] += row[a] * (status[i] - h)
				for b := 0; b < p; b++ {
					info[a][b] += row[a] * row[b] * h
				}
			}
		}

		step, err := linalg.Solve(info, grad)
		if err != nil {
			return nil, fmt.Errorf("newton step %d: %w", iter+1, err)
		}

		improved := false
		for scale := 1.0; scale > 1e-8; scale /= 2 {
			next := make([]float64, p)
			for j := range gamma {
				next[j] = gamma[j] + scale*step[j]
			}
			nextLL := loglik(x, time, status, next)
			if nextLL >= ll-1e-12 {
				converged := math.Abs(nextLL-ll) < 1e-10*(1+math.Abs(ll))
				gamma, ll, improved = next, nextLL, !converged
				break
			}
		}
		if !improved {
			break
		}
	}

	return &Fit{
		Dist:       "exp",
		Gamma:      gamma,
		Columns:    append([]string(nil), columns...),
		LogLik:     ll,
		Iterations: iter + 1,
	}, nil
}

func loglik(x [][]float64, time, status, gamma []float64) float64 {
	ll := 0.0
	for i, row := range x {
		eta := linalg.Dot(row, gamma)
		ll += status[i]*eta - time[i]*math.Exp(eta)
	}
	return ll
}

// Linear returns the log rate x·gamma for each row.
func (f *Fit) Linear(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(f.Gamma) {
			return nil, fmt.Errorf("row %d has %d columns, model has %d", i+1, len(row), len(f.Gamma))
		}
		out[i] = linalg.Dot(row, f.Gamma)
	}
	return out, nil
}

// Summary returns one table per observation.
func (f *Fit) Summary(x [][]float64, typ string, at []float64) ([]Table, error) {
	lin, err := f.Linear(x)
	if err != nil {
		return nil, err
	}

	out := make([]Table, len(lin))
	for i, eta := range lin {
		rate := math.Exp(eta)
		switch typ {
		case TypeMean:
			out[i] = Table{Est: []float64{1 / rate}}
		case TypeSurvival:
			est := make([]float64, len(at))
			for k, t := range at {
				est[k] = math.Exp(-rate * t)
			}
			out[i] = Table{Time: append([]float64(nil), at...), Est: est}
		case TypeHazard:
			est := make([]float64, len(at))
			for k := range at {
				est[k] = rate
			}
			out[i] = Table{Time: append([]float64(nil), at...), Est: est}
		case TypeQuantile:
			est := make([]float64, len(at))
			for k, p := range at {
				est[k] = -math.Log1p(-p) / rate
			}
			out[i] = Table{Quantile: append([]float64(nil), at...), Est: est}
		default:
			return nil, fmt.Errorf("unknown summary type %q", typ)
		}
	}
	return out, nil
}

// Decode restores a fit from its JSON encoding.
func Decode(data []byte) (*Fit, error) {
	var f Fit
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
