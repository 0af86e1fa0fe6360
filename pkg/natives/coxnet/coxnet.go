// Package coxnet fits elastic-net penalized Cox models along a path of
// penalty values. Coefficients are solved on standardized predictors and
// reported on the original scale.
package coxnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tidysurv/censored/pkg/natives/coxph"
)

// Options controls the path.
type Options struct {
	Alpha          float64
	NLambda        int
	LambdaMinRatio float64

	// Lambda replaces the generated path when set.
	Lambda []float64

	// Include is added to the path if it is not already on it.
	Include *float64

	MaxIter int
	Tol     float64
}

func (o *Options) setDefaults() {
	if o.NLambda == 0 {
		o.NLambda = 20
	}
	if o.LambdaMinRatio == 0 {
		o.LambdaMinRatio = 0.01
	}
	if o.MaxIter == 0 {
		o.MaxIter = 2000
	}
	if o.Tol == 0 {
		o.Tol = 1e-8
	}
}

// Data is the training copy kept for survival curve prediction.
type Data struct {
	X      [][]float64 `json:"x"`
	Time   []float64   `json:"time"`
	Status []float64   `json:"status"`
}

// Fit is a fitted coefficient path. Lambda is in decreasing order and
// Beta[k] holds the coefficients for Lambda[k].
type Fit struct {
	Lambda  []float64   `json:"lambda"`
	Beta    [][]float64 `json:"beta"`
	Alpha   float64     `json:"alpha"`
	Columns []string    `json:"columns"`
	MaxTime float64     `json:"max_time"`
	Data    *Data       `json:"data,omitempty"`
}

// Train fits the path.
func Train(x [][]float64, columns []string, time, status []float64, opts Options) (*Fit, error) {
	opts.setDefaults()
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("alpha must be in [0, 1], got %v", opts.Alpha)
	}
	n := len(x)
	if n == 0 || n != len(time) || n != len(status) {
		return nil, errors.New("x, time and status must be non-empty and the same length")
	}
	p := len(x[0])
	if p == 0 {
		return nil, errors.New("at least one predictor is required")
	}

	events := 0.0
	for _, s := range status {
		events += s
	}
	if events == 0 {
		return nil, errors.New("no events in training data")
	}

	z, sd := standardize(x)
	order := descending(time)
	obj := &objective{z: z, time: time, status: status, order: order, n: float64(n), alpha: opts.Alpha}

	lambda, err := path(obj, p, opts)
	if err != nil {
		return nil, err
	}

	beta := make([]float64, p)
	step := 1.0
	out := make([][]float64, len(lambda))
	for k, lam := range lambda {
		beta, step = obj.solve(beta, lam, step, opts.MaxIter, opts.Tol)
		orig := make([]float64, p)
		for j := range beta {
			if sd[j] > 0 {
				orig[j] = beta[j] / sd[j]
			}
		}
		out[k] = orig
	}

	data := &Data{
		X:      copyMatrix(x),
		Time:   append([]float64(nil), time...),
		Status: append([]float64(nil), status...),
	}

	maxTime := 0.0
	for _, t := range time {
		maxTime = math.Max(maxTime, t)
	}

	return &Fit{
		Lambda:  lambda,
		Beta:    out,
		Alpha:   opts.Alpha,
		Columns: append([]string(nil), columns...),
		MaxTime: maxTime,
		Data:    data,
	}, nil
}

func path(obj *objective, p int, opts Options) ([]float64, error) {
	var lambda []float64
	if len(opts.Lambda) > 0 {
		for _, l := range opts.Lambda {
			if l < 0 || math.IsNaN(l) {
				return nil, fmt.Errorf("penalty values must be non-negative, got %v", l)
			}
		}
		lambda = append(lambda, opts.Lambda...)
	} else {
		_, grad := obj.eval(make([]float64, p), 0)
		lmax := 0.0
		for _, g := range grad {
			lmax = math.Max(lmax, math.Abs(g))
		}
		lmax /= math.Max(opts.Alpha, 1e-3)
		if lmax == 0 {
			lmax = 1
		}
		lmin := lmax * opts.LambdaMinRatio
		for k := 0; k < opts.NLambda; k++ {
			frac := 0.0
			if opts.NLambda > 1 {
				frac = float64(k) / float64(opts.NLambda-1)
			}
			lambda = append(lambda, math.Exp(math.Log(lmax)+frac*(math.Log(lmin)-math.Log(lmax))))
		}
	}

	if opts.Include != nil {
		if *opts.Include < 0 {
			return nil, fmt.Errorf("penalty must be non-negative, got %v", *opts.Include)
		}
		lambda = append(lambda, *opts.Include)
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(lambda)))
	dedup := lambda[:1]
	for _, l := range lambda[1:] {
		if !closeTo(l, dedup[len(dedup)-1]) {
			dedup = append(dedup, l)
		}
	}
	return dedup, nil
}

// objective is the smooth part of the penalized negative log partial
// likelihood on standardized predictors.
type objective struct {
	z      [][]float64
	time   []float64
	status []float64
	order  []int
	n      float64
	alpha  float64
}

// eval returns -(1/n) logPL + lambda*(1-alpha)/2 * |beta|^2 and its gradient.
func (o *objective) eval(beta []float64, lambda float64) (float64, []float64) {
	p := len(beta)
	grad := make([]float64, p)
	s1 := make([]float64, p)
	s0 := 0.0
	ll := 0.0

	for g := 0; g < len(o.order); {
		end := g
		for end < len(o.order) && o.time[o.order[end]] == o.time[o.order[g]] {
			i := o.order[end]
			w := math.Exp(dot(o.z[i], beta))
			s0 += w
			for a := 0; a < p; a++ {
				s1[a] += w * o.z[i][a]
			}
			end++
		}
		for k := g; k < end; k++ {
			i := o.order[k]
			if o.status[i] == 0 {
				continue
			}
			ll += dot(o.z[i], beta) - math.Log(s0)
			for a := 0; a < p; a++ {
				grad[a] += o.z[i][a] - s1[a]/s0
			}
		}
		g = end
	}

	f := -ll / o.n
	ridge := lambda * (1 - o.alpha)
	for a := range grad {
		grad[a] = -grad[a]/o.n + ridge*beta[a]
		f += ridge / 2 * beta[a] * beta[a]
	}
	return f, grad
}

// solve runs proximal gradient descent with backtracking from a warm start.
func (o *objective) solve(start []float64, lambda, step float64, maxIter int, tol float64) ([]float64, float64) {
	beta := append([]float64(nil), start...)
	l1 := lambda * o.alpha

	f, grad := o.eval(beta, lambda)
	for iter := 0; iter < maxIter; iter++ {
		var next []float64
		var fNext float64
		var gNext []float64
		for {
			next = make([]float64, len(beta))
			for j := range beta {
				next[j] = softThreshold(beta[j]-step*grad[j], step*l1)
			}
			fNext, gNext = o.eval(next, lambda)

			bound := f
			sq := 0.0
			for j := range beta {
				d := next[j] - beta[j]
				bound += grad[j] * d
				sq += d * d
			}
			bound += sq / (2 * step)
			if fNext <= bound+1e-15 || step < 1e-12 {
				break
			}
			step /= 2
		}

		delta := 0.0
		for j := range beta {
			delta = math.Max(delta, math.Abs(next[j]-beta[j]))
		}
		beta, f, grad = next, fNext, gNext
		if delta < tol {
			break
		}
		step *= 1.25
	}
	return beta, step
}

// Penalties returns the trained path values.
func (f *Fit) Penalties() []float64 {
	return append([]float64(nil), f.Lambda...)
}

// Coef returns the coefficients at s, interpolating linearly between the
// neighbouring path values. Values outside the path are clamped.
func (f *Fit) Coef(s float64) []float64 {
	last := len(f.Lambda) - 1
	if s >= f.Lambda[0] {
		return append([]float64(nil), f.Beta[0]...)
	}
	if s <= f.Lambda[last] {
		return append([]float64(nil), f.Beta[last]...)
	}
	k := sort.Search(len(f.Lambda), func(i int) bool { return f.Lambda[i] <= s })
	if closeTo(f.Lambda[k], s) {
		return append([]float64(nil), f.Beta[k]...)
	}
	hi, lo := k-1, k
	frac := (f.Lambda[hi] - s) / (f.Lambda[hi] - f.Lambda[lo])
	out := make([]float64, len(f.Beta[hi]))
	for j := range out {
		out[j] = (1-frac)*f.Beta[hi][j] + frac*f.Beta[lo][j]
	}
	return out
}

// PredictLinear returns x·beta(s) with one column per value of s.
func (f *Fit) PredictLinear(x [][]float64, s []float64) ([][]float64, error) {
	coefs := make([][]float64, len(s))
	for k, v := range s {
		coefs[k] = f.Coef(v)
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(f.Columns) {
			return nil, fmt.Errorf("row %d has %d columns, model has %d", i+1, len(row), len(f.Columns))
		}
		out[i] = make([]float64, len(s))
		for k := range s {
			out[i][k] = dot(row, coefs[k])
		}
	}
	return out, nil
}

// Survfit returns survival curves at s. The training copy is required to
// estimate the baseline hazard.
func (f *Fit) Survfit(x [][]float64, s float64, data *Data) (*coxph.Survfit, error) {
	if data == nil {
		return nil, errors.New("training data is required for survival curves")
	}
	beta := f.Coef(s)

	trainLP := make([]float64, len(data.X))
	for i, row := range data.X {
		trainLP[i] = dot(row, beta)
	}
	bt, bh := coxph.Breslow(trainLP, data.Time, data.Status)

	lp, err := f.PredictLinear(x, []float64{s})
	if err != nil {
		return nil, err
	}
	newLP := make([]float64, len(lp))
	for i := range lp {
		newLP[i] = lp[i][0]
	}
	return coxph.NewSurvfit(coxph.Baseline{Time: bt, Cumhaz: bh}, newLP, f.MaxTime), nil
}

// Decode restores a fit from its JSON encoding.
func Decode(data []byte) (*Fit, error) {
	var f Fit
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Lambda) == 0 || len(f.Lambda) != len(f.Beta) {
		return nil, errors.New("coxnet fit has an empty or inconsistent path")
	}
	return &f, nil
}

func standardize(x [][]float64) ([][]float64, []float64) {
	n := float64(len(x))
	p := len(x[0])
	mean := make([]float64, p)
	sd := make([]float64, p)
	for _, row := range x {
		for j, v := range row {
			mean[j] += v / n
		}
	}
	for _, row := range x {
		for j, v := range row {
			sd[j] += (v - mean[j]) * (v - mean[j]) / n
		}
	}
	for j := range sd {
		sd[j] = math.Sqrt(sd[j])
	}

	z := make([][]float64, len(x))
	for i, row := range x {
		z[i] = make([]float64, p)
		for j, v := range row {
			if sd[j] > 0 {
				z[i][j] = (v - mean[j]) / sd[j]
			}
		}
	}
	return z, sd
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func descending(time []float64) []int {
	order := make([]int, len(time))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return time[order[a]] > time[order[b]] })
	return order
}

func copyMatrix(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
