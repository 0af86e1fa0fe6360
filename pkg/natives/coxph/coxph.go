// Package coxph fits Cox proportional hazards models by maximizing the
// Breslow partial likelihood, and builds survfit-style step curves.
//
// Linear predictors are log relative hazards on centered covariates:
// larger values mean shorter expected survival.
package coxph

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tidysurv/censored/pkg/natives/linalg"
)

// TiesBreslow is the only supported tie-handling method.
const TiesBreslow = "breslow"

// Fit is a fitted Cox model.
type Fit struct {
	Coefficients []float64 `json:"coefficients"`
	Means        []float64 `json:"means"`
	Columns      []string  `json:"columns"`
	LogLik       float64   `json:"loglik"`
	Iterations   int       `json:"iterations"`
	Baseline     Baseline  `json:"baseline"`
	MaxTime      float64   `json:"max_time"`
}

// Baseline is the Breslow cumulative baseline hazard at the distinct event
// times, for a linear predictor of zero.
type Baseline struct {
	Time   []float64 `json:"time"`
	Cumhaz []float64 `json:"cumhaz"`
}

// Survfit holds survival curves for several observations at shared times.
// Surv is indexed [time][observation].
type Survfit struct {
	Time    []float64   `json:"time"`
	Surv    [][]float64 `json:"surv"`
	MaxTime float64     `json:"max_time"`
}

// Train fits the model.
func Train(x [][]float64, columns []string, time, status []float64, ties string) (*Fit, error) {
	if ties == "" {
		ties = TiesBreslow
	}
	if ties != TiesBreslow {
		return nil, fmt.Errorf("ties method %q is not available", ties)
	}
	n := len(x)
	if n == 0 || n != len(time) || n != len(status) {
		return nil, errors.New("x, time and status must be non-empty and the same length")
	}

	p := len(x[0])
	means := make([]float64, p)
	for _, row := range x {
		for j, v := range row {
			means[j] += v / float64(n)
		}
	}
	xc := make([][]float64, n)
	for i, row := range x {
		xc[i] = make([]float64, p)
		for j, v := range row {
			xc[i][j] = v - means[j]
		}
	}

	order := descending(time)
	beta := make([]float64, p)
	ll, grad, info := partial(xc, time, status, beta, order)

	iter := 0
	for ; iter < 30 && p > 0; iter++ {
		step, err := linalg.Solve(info, grad)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter+1, err)
		}

		accepted := false
		for scale := 1.0; scale > 1e-6; scale /= 2 {
			next := make([]float64, p)
			for j := range beta {
				next[j] = beta[j] + scale*step[j]
			}
			nll, ng, ni := partial(xc, time, status, next, order)
			if nll >= ll-1e-12 {
				converged := math.Abs(nll-ll) < 1e-10*(1+math.Abs(ll))
				beta, ll, grad, info = next, nll, ng, ni
				accepted = !converged
				break
			}
		}
		if !accepted {
			break
		}
	}

	for _, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, errors.New("partial likelihood did not converge")
		}
	}

	lp := make([]float64, n)
	for i, row := range xc {
		lp[i] = linalg.Dot(row, beta)
	}
	bt, bh := Breslow(lp, time, status)
	if len(bt) == 0 {
		return nil, errors.New("no events in training data")
	}

	return &Fit{
		Coefficients: beta,
		Means:        means,
		Columns:      append([]string(nil), columns...),
		LogLik:       ll,
		Iterations:   iter + 1,
		Baseline:     Baseline{Time: bt, Cumhaz: bh},
		MaxTime:      maxOf(time),
	}, nil
}

// partial returns the Breslow log partial likelihood, its gradient and the
// observed information.
func partial(x [][]float64, time, status, beta []float64, order []int) (float64, []float64, [][]float64) {
	p := len(beta)
	grad := make([]float64, p)
	info := linalg.Zeros(p)
	s1 := make([]float64, p)
	s2 := linalg.Zeros(p)
	s0 := 0.0
	ll := 0.0

	for g := 0; g < len(order); {
		end := g
		for end < len(order) && time[order[end]] == time[order[g]] {
			i := order[end]
			w := math.Exp(linalg.Dot(x[i], beta))
			s0 += w
			for a := 0; a < p; a++ {
				s1[a] += w * x[i][a]
				for b := 0; b < p; b++ {
					s2[a][b] += w * x[i][a] * x[i][b]
				}
			}
			end++
		}

		for k := g; k < end; k++ {
			i := order[k]
			if status[i] == 0 {
				continue
			}
			ll += linalg.Dot(x[i], beta) - math.Log(s0)
			for a := 0; a < p; a++ {
				grad[a] += x[i][a] - s1[a]/s0
				for b := 0; b < p; b++ {
					info[a][b] += s2[a][b]/s0 - s1[a]*s1[b]/(s0*s0)
				}
			}
		}
		g = end
	}
	return ll, grad, info
}

// Breslow computes the cumulative baseline hazard at each distinct event
// time given training linear predictors.
func Breslow(lp, time, status []float64) ([]float64, []float64) {
	order := descending(time)

	type step struct {
		t      float64
		events float64
		s0     float64
	}
	var steps []step
	s0 := 0.0
	for g := 0; g < len(order); {
		end := g
		d := 0.0
		for end < len(order) && time[order[end]] == time[order[g]] {
			s0 += math.Exp(lp[order[end]])
			d += status[order[end]]
			end++
		}
		if d > 0 {
			steps = append(steps, step{t: time[order[g]], events: d, s0: s0})
		}
		g = end
	}

	times := make([]float64, len(steps))
	cumhaz := make([]float64, len(steps))
	h := 0.0
	for k := len(steps) - 1; k >= 0; k-- {
		s := steps[k]
		h += s.events / s.s0
		idx := len(steps) - 1 - k
		times[idx] = s.t
		cumhaz[idx] = h
	}
	return times, cumhaz
}

// NewSurvfit builds survival curves from a baseline and linear predictors
// on the same scale the baseline was computed for.
func NewSurvfit(b Baseline, lp []float64, maxTime float64) *Survfit {
	surv := make([][]float64, len(b.Time))
	for k := range b.Time {
		surv[k] = make([]float64, len(lp))
		for i, eta := range lp {
			surv[k][i] = math.Exp(-b.Cumhaz[k] * math.Exp(eta))
		}
	}
	return &Survfit{Time: append([]float64(nil), b.Time...), Surv: surv, MaxTime: maxTime}
}

// RestrictedMean integrates each curve from zero to MaxTime.
func (s *Survfit) RestrictedMean() []float64 {
	if len(s.Surv) == 0 {
		return nil
	}
	n := len(s.Surv[0])
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		prevT, prevS := 0.0, 1.0
		area := 0.0
		for k, t := range s.Time {
			area += prevS * (t - prevT)
			prevT, prevS = t, s.Surv[k][i]
		}
		area += prevS * math.Max(s.MaxTime-prevT, 0)
		out[i] = area
	}
	return out
}

// LinearPredictors returns centered x·beta.
func (f *Fit) LinearPredictors(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(f.Coefficients) {
			return nil, fmt.Errorf("row %d has %d columns, model has %d", i+1, len(row), len(f.Coefficients))
		}
		for j, v := range row {
			out[i] += (v - f.Means[j]) * f.Coefficients[j]
		}
	}
	return out, nil
}

// Survfit returns survival curves for new observations.
func (f *Fit) Survfit(x [][]float64) (*Survfit, error) {
	lp, err := f.LinearPredictors(x)
	if err != nil {
		return nil, err
	}
	return NewSurvfit(f.Baseline, lp, f.MaxTime), nil
}

// Decode restores a fit from its JSON encoding.
func Decode(data []byte) (*Fit, error) {
	var f Fit
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func descending(time []float64) []int {
	order := make([]int, len(time))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return time[order[a]] > time[order[b]] })
	return order
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
