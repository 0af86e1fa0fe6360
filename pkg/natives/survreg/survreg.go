// Package survreg fits parametric accelerated failure time models.
//
// The linear predictor is on the log-time scale: larger values mean longer
// expected survival. Predictions are returned as row by column matrices.
package survreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidysurv/censored/pkg/natives/linalg"
)

// Supported distributions.
const DistExponential = "exponential"

// Prediction types understood by Predict.
const (
	TypeResponse = "response"
	TypeLP       = "lp"
	TypeQuantile = "quantile"
	TypeSurvival = "survival"
	TypeHazard   = "hazard"
)

const (
	maxIter = 50
	tol     = 1e-9
)

// Options controls the fit.
type Options struct {
	Dist    string
	MaxIter int
}

// Fit is a fitted AFT model.
type Fit struct {
	Coefficients []float64 `json:"coefficients"`
	Columns      []string  `json:"columns"`
	Dist         string    `json:"dist"`
	LogLik       float64   `json:"loglik"`
	Iterations   int       `json:"iterations"`
	N            int       `json:"n"`
}

// Train fits the model by Newton-Raphson on the log-likelihood.
func Train(x [][]float64, columns []string, time, status []float64, opts Options) (*Fit, error) {
	if opts.Dist == "" {
		opts.Dist = DistExponential
	}
	if opts.Dist != DistExponential {
		return nil, fmt.Errorf("distribution %q is not available", opts.Dist)
	}
	if opts.MaxIter == 0 {
		opts.MaxIter = maxIter
	}
	if len(x) == 0 || len(x) != len(time) || len(time) != len(status) {
		return nil, errors.New("x, time and status must be non-empty and the same length")
	}

	events := 0.0
	total := 0.0
	for i := range time {
		events += status[i]
		total += time[i]
	}
	if events == 0 {
		return nil, errors.New("no events in training data")
	}

	p := len(x[0])
	beta := make([]float64, p)
	for j, c := range columns {
		if c == "(Intercept)" {
			beta[j] = math.Log(total / events)
		}
	}

	ll := loglik(x, time, status, beta)
	iter := 0
	for ; iter < opts.MaxIter; iter++ {
		grad := make([]float64, p)
		info := linalg.Zeros(p)
		for i, row := range x {
			mu := time[i] * math.Exp(-linalg.Dot(row, beta))
			for a := 0; a < p; a++ {
				grad[a] += row[a] * (mu - status[i])
				for b := 0; b < p; b++ {
					info[a][b] += row[a] * row[b] * mu
				}
			}
		}

		step, err := linalg.Solve(info, grad)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter+1, err)
		}

		next, nextLL := halve(x, time, status, beta, step, ll)
		done := math.Abs(nextLL-ll) < tol*(math.Abs(ll)+tol)
		beta, ll = next, nextLL
		if done {
			break
		}
	}

	for _, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, errors.New("fit did not converge")
		}
	}

	return &Fit{
		Coefficients: beta,
		Columns:      append([]string(nil), columns...),
		Dist:         opts.Dist,
		LogLik:       ll,
		Iterations:   iter + 1,
		N:            len(x),
	}, nil
}

// halve takes the Newton step, halving it until the log-likelihood does
// not decrease.
func halve(x [][]float64, time, status, beta, step []float64, ll float64) ([]float64, float64) {
	scale := 1.0
	for k := 0; k < 30; k++ {
		next := make([]float64, len(beta))
		for j := range beta {
			next[j] = beta[j] + scale*step[j]
		}
		if nextLL := loglik(x, time, status, next); nextLL >= ll-tol {
			return next, nextLL
		}
		scale /= 2
	}
	return beta, ll
}

func loglik(x [][]float64, time, status, beta []float64) float64 {
	ll := 0.0
	for i, row := range x {
		eta := linalg.Dot(row, beta)
		ll += -status[i]*eta - time[i]*math.Exp(-eta)
	}
	return ll
}

// LinearPredictors returns x·beta for each row.
func (f *Fit) LinearPredictors(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(f.Coefficients) {
			return nil, fmt.Errorf("row %d has %d columns, model has %d", i+1, len(row), len(f.Coefficients))
		}
		out[i] = linalg.Dot(row, f.Coefficients)
	}
	return out, nil
}

// Predict returns one row per observation. Response and lp have a single
// column; quantile, survival and hazard have one column per value of at.
func (f *Fit) Predict(x [][]float64, typ string, at []float64) ([][]float64, error) {
	lp, err := f.LinearPredictors(x)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(lp))
	for i, eta := range lp {
		switch typ {
		case TypeResponse:
			out[i] = []float64{math.Exp(eta)}
		case TypeLP:
			out[i] = []float64{eta}
		case TypeQuantile:
			out[i] = make([]float64, len(at))
			for k, p := range at {
				out[i][k] = -math.Log1p(-p) * math.Exp(eta)
			}
		case TypeSurvival:
			out[i] = make([]float64, len(at))
			for k, t := range at {
				out[i][k] = math.Exp(-t * math.Exp(-eta))
			}
		case TypeHazard:
			out[i] = make([]float64, len(at))
			for k := range at {
				out[i][k] = math.Exp(-eta)
			}
		default:
			return nil, fmt.Errorf("unknown prediction type %q", typ)
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
