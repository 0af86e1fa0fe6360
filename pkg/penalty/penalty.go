// Package penalty resolves which strength of a regularization path a
// prediction uses and expands predictions across several strengths.
package penalty

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/telemetry"
)

// tolerance for matching a requested strength against a trained one.
const tolerance = 1e-10

// Select returns the strength a single prediction should use.
//
// requested takes precedence over selected, the strength chosen when the
// model was specified. With neither, a path with one trained strength uses
// it and a longer path is ambiguous. A one-strength path rejects any other
// value; a longer path accepts values within its range.
func Select(path []float64, selected, requested *float64) (float64, error) {
	if len(path) == 0 {
		return 0, model.NewConfigurationError("model has no trained penalty path", nil)
	}

	want := requested
	if want == nil {
		want = selected
	}

	if want == nil {
		if len(path) == 1 {
			return path[0], nil
		}
		return 0, model.NewAmbiguousStrengthError(fmt.Sprintf(
			"model was trained with %d penalty values; supply a single value for %q", len(path), model.ArgPenalty)).
			WithDetail("trained", len(path))
	}

	p := *want
	if math.IsNaN(p) || p < 0 {
		return 0, model.NewInvalidArgumentError(
			fmt.Sprintf("penalty must be a non-negative number, got %v", p), nil).
			WithCode(model.ErrCodeOutOfRange).
			WithDetail("requested", p)
	}

	if len(path) == 1 {
		if !closeTo(path[0], p) {
			return 0, model.NewIncompatibleStrengthError(fmt.Sprintf(
				"model was trained with a single penalty value (%v); cannot predict at %v", path[0], p)).
				WithDetail("trained", path[0]).
				WithDetail("requested", p)
		}
		return path[0], nil
	}

	lo, hi := bounds(path)
	if p < lo-tolerance || p > hi+tolerance {
		return 0, model.NewIncompatibleStrengthError(fmt.Sprintf(
			"penalty %v is outside the trained range [%v, %v]", p, lo, hi)).
			WithDetail("min", lo).
			WithDetail("max", hi).
			WithDetail("requested", p)
	}
	return p, nil
}

// BatchFunc predicts every strength in one native call and returns a path
// result.
type BatchFunc func(ctx context.Context, penalties []float64) (*model.Result, error)

// SingleFunc predicts at one strength.
type SingleFunc func(ctx context.Context, penalty float64) (*model.Result, error)

// Request describes a multi-strength prediction.
type Request struct {
	Type model.PredictionType

	// Path is the trained strengths of the fitted model.
	Path []float64

	// Penalties are the requested strengths. Empty means the whole path.
	Penalties []float64

	// Batch is set when the engine can predict all strengths at once.
	Batch BatchFunc

	// Single is used for each strength when Batch is nil.
	Single SingleFunc
}

// Resolver expands multi-strength predictions.
type Resolver struct {
	workers int
}

// NewResolver creates a resolver running at most workers single-strength
// predictions at a time. Zero means GOMAXPROCS.
func NewResolver(workers int) *Resolver {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Resolver{workers: workers}
}

// Expand returns one entry per input row, each holding one value per
// requested strength sorted by strength ascending.
func (r *Resolver) Expand(ctx context.Context, req Request) (*model.Result, error) {
	penalties := req.Penalties
	if len(penalties) == 0 {
		penalties = append([]float64(nil), req.Path...)
	}
	for _, p := range penalties {
		p := p
		if _, err := Select(req.Path, nil, &p); err != nil {
			return nil, err
		}
	}

	logger := telemetry.FromContext(ctx).WithPredictionType(req.Type)

	if req.Batch != nil {
		telemetry.AddEvent(ctx, telemetry.EventPenaltyBatch, telemetry.AttrPenalties.Float64Slice(penalties))
		res, err := req.Batch(ctx, penalties)
		if err != nil {
			return nil, err
		}
		if res.Paths == nil {
			return nil, fmt.Errorf("batch %s prediction returned no path values", req.Type)
		}
		telemetry.RecordPathExpansion(ctx, req.Type, "batch")
		logger.Debugf("expanded %d penalties in one call", len(penalties))
		return res, nil
	}

	if req.Single == nil {
		return nil, fmt.Errorf("no single-strength predictor for %s", req.Type)
	}

	results := make([]*model.Result, len(penalties))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for k, p := range penalties {
		k, p := k, p
		g.Go(func() error {
			telemetry.AddEvent(ctx, telemetry.EventPenaltySingle, telemetry.AttrPenalty.Float64(p))
			res, err := req.Single(gctx, p)
			if err != nil {
				return err
			}
			results[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths, err := Assemble(penalties, results)
	if err != nil {
		return nil, err
	}
	telemetry.RecordPathExpansion(ctx, req.Type, "fanout")
	logger.Debugf("expanded %d penalties with %d workers", len(penalties), r.workers)
	return model.NewPathResult(req.Type, paths), nil
}

// Pivot turns a row by strength matrix into per-row entries sorted by
// strength.
func Pivot(m [][]float64, penalties []float64) ([][]model.PathPoint, error) {
	out := make([][]model.PathPoint, len(m))
	for i, row := range m {
		if len(row) != len(penalties) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i+1, len(row), len(penalties))
		}
		out[i] = make([]model.PathPoint, len(penalties))
		for k, p := range penalties {
			out[i][k] = model.PathPoint{Penalty: p, Value: row[k]}
		}
		sortPoints(out[i])
	}
	return out, nil
}

// Assemble combines per-strength results into per-row entries sorted by
// strength. Every result must have the same number of rows.
func Assemble(penalties []float64, results []*model.Result) ([][]model.PathPoint, error) {
	if len(penalties) != len(results) {
		return nil, fmt.Errorf("%d penalties but %d results", len(penalties), len(results))
	}
	if len(results) == 0 {
		return nil, nil
	}

	n := results[0].Len()
	out := make([][]model.PathPoint, n)
	for i := range out {
		out[i] = make([]model.PathPoint, len(penalties))
	}

	for k, res := range results {
		if res.Len() != n {
			return nil, fmt.Errorf("penalty %v returned %d rows, want %d", penalties[k], res.Len(), n)
		}
		for i := 0; i < n; i++ {
			pt := model.PathPoint{Penalty: penalties[k]}
			if res.Curves != nil {
				pt.Curve = res.Curves[i]
			} else {
				pt.Value = res.Scalars[i]
			}
			out[i][k] = pt
		}
	}

	for i := range out {
		sortPoints(out[i])
	}
	return out, nil
}

func sortPoints(pts []model.PathPoint) {
	sort.SliceStable(pts, func(a, b int) bool { return pts[a].Penalty < pts[b].Penalty })
}

func bounds(path []float64) (float64, float64) {
	lo, hi := path[0], path[0]
	for _, p := range path[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return lo, hi
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(a))
}
