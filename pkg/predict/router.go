// Package predict routes prediction requests to the recipe registered for
// a fitted model's engine and normalizes native output into standardized
// results.
package predict

import (
	"context"
	"fmt"
	"math"

	"github.com/tidysurv/censored/pkg/frame"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/penalty"
	"github.com/tidysurv/censored/pkg/registry"
	"github.com/tidysurv/censored/pkg/telemetry"
)

// Router dispatches predictions. It never modifies the fitted model, so
// concurrent calls against one model are safe.
type Router struct {
	registry *registry.Registry
	resolver *penalty.Resolver
}

// NewRouter creates a router. A nil resolver runs multi-strength
// predictions with GOMAXPROCS workers.
func NewRouter(reg *registry.Registry, resolver *penalty.Resolver) *Router {
	if resolver == nil {
		resolver = penalty.NewResolver(0)
	}
	return &Router{registry: reg, resolver: resolver}
}

// Predict returns one standardized entry per row of data.
func (r *Router) Predict(ctx context.Context, fitted *model.FittedModel, data *frame.Frame, opts model.PredictOptions) (*model.Result, error) {
	if fitted == nil {
		return nil, model.NewInvalidArgumentError("fitted model is required", nil).WithCode(model.ErrCodeMissingArgument)
	}
	if data == nil {
		return nil, model.NewInvalidArgumentError("new data is required", nil).WithCode(model.ErrCodeMissingArgument)
	}
	if err := fitted.Err(); err != nil {
		return nil, err
	}

	spec := fitted.Spec
	if err := validateOptions(fitted, opts); err != nil {
		return nil, err.WithEngine(spec.Family, spec.Engine).WithOperation("predict")
	}

	recipe, err := r.registry.Prediction(spec.Family, spec.Engine, opts.Type)
	if err != nil {
		return nil, err
	}

	ic := telemetry.StartPredict(ctx, spec.Family, spec.Engine, opts.Type)
	ic.Logger = ic.Logger.WithFitID(fitted.ID)
	ic.SetAttributes(telemetry.AttrFitID.String(fitted.ID), telemetry.AttrRows.Int(data.NRow()))

	res, err := r.predict(ic.Ctx, fitted, recipe, data, opts)
	ic.End(err)
	if err != nil {
		return nil, err
	}
	if !finite(res) {
		ic.Logger.Warn("prediction contains non-finite values")
	}
	return res, nil
}

func (r *Router) predict(ctx context.Context, fitted *model.FittedModel, recipe *registry.PredRecipe, data *frame.Frame, opts model.PredictOptions) (*model.Result, error) {
	spec := fitted.Spec

	x, err := fitted.Blueprint.Forge(data)
	if err != nil {
		return nil, model.NewInvalidArgumentError("cannot build prediction data", err).
			WithCode(model.ErrCodeBadData).
			WithEngine(spec.Family, spec.Engine).
			WithOperation("predict")
	}

	base := registry.PredictCall{Fitted: fitted, X: x, Options: opts, Args: recipe.Args}
	if recipe.Pre != nil {
		if x, err = recipe.Pre(x, &base); err != nil {
			return nil, fmt.Errorf("failed to prepare %s prediction: %w", opts.Type, err)
		}
		base.X = x
	}

	var res *model.Result
	switch fitted.Kind {
	case model.EngineKindStandard:
		res, err = run(ctx, recipe, &base)

	case model.EngineKindPath:
		path := fitted.PathPenalties()
		if opts.Multi {
			req := penalty.Request{
				Type:      opts.Type,
				Path:      path,
				Penalties: opts.Penalties,
				Single: func(ctx context.Context, p float64) (*model.Result, error) {
					call := base
					call.Penalty = p
					return run(ctx, recipe, &call)
				},
			}
			if recipe.Batch {
				req.Batch = func(ctx context.Context, ps []float64) (*model.Result, error) {
					call := base
					call.Penalties = ps
					return run(ctx, recipe, &call)
				}
			}
			res, err = r.resolver.Expand(ctx, req)
			break
		}

		p, serr := penalty.Select(path, fitted.Penalty, opts.Penalty)
		if serr != nil {
			if me, ok := serr.(*model.Error); ok {
				serr = me.WithEngine(spec.Family, spec.Engine).WithOperation("predict")
			}
			return nil, serr
		}
		call := base
		call.Penalty = p
		res, err = run(ctx, recipe, &call)

	default:
		return nil, model.NewConfigurationError(fmt.Sprintf("unknown engine kind %q", fitted.Kind), nil).
			WithEngine(spec.Family, spec.Engine)
	}
	if err != nil {
		return nil, err
	}

	if res.Len() != x.NRow() {
		return nil, fmt.Errorf("%s prediction returned %d rows for %d inputs", opts.Type, res.Len(), x.NRow())
	}
	return res, nil
}

func run(ctx context.Context, recipe *registry.PredRecipe, call *registry.PredictCall) (*model.Result, error) {
	raw, err := recipe.Func(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("native %s prediction failed: %w", call.Options.Type, err)
	}
	res, err := recipe.Post(raw, call)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s prediction: %w", call.Options.Type, err)
	}
	return res, nil
}

func validateOptions(fitted *model.FittedModel, opts model.PredictOptions) *model.Error {
	if _, err := model.ParsePredictionType(string(opts.Type)); err != nil {
		return model.NewInvalidArgumentError(err.Error(), nil).
			WithCode(model.ErrCodeOutOfRange).
			WithDetail("type", string(opts.Type))
	}

	if opts.Type.NeedsEvalTime() {
		if len(opts.EvalTime) == 0 {
			return model.NewInvalidArgumentError(
				fmt.Sprintf("eval_time is required for %s predictions", opts.Type), nil).
				WithCode(model.ErrCodeMissingArgument).
				WithDetail("argument", "eval_time")
		}
		for _, t := range opts.EvalTime {
			if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
				return model.NewInvalidArgumentError(
					fmt.Sprintf("eval_time values must be finite and non-negative, got %v", t), nil).
					WithCode(model.ErrCodeOutOfRange).
					WithDetail("argument", "eval_time")
			}
		}
	}

	if opts.Type == model.TypeQuantile {
		for _, q := range opts.Quantile {
			if !(q > 0 && q < 1) {
				return model.NewInvalidArgumentError(
					fmt.Sprintf("quantile levels must be in (0, 1), got %v", q), nil).
					WithCode(model.ErrCodeOutOfRange).
					WithDetail("argument", "quantile")
			}
		}
	}

	if fitted.Kind != model.EngineKindPath && (opts.Multi || opts.Penalty != nil || len(opts.Penalties) > 0) {
		return model.NewInvalidArgumentError("penalty applies only to path models", nil).
			WithCode(model.ErrCodeOutOfRange).
			WithDetail("argument", model.ArgPenalty)
	}
	if !opts.Multi && len(opts.Penalties) > 0 {
		return model.NewInvalidArgumentError("several penalties need a multi-strength prediction", nil).
			WithCode(model.ErrCodeScalarRequired).
			WithDetail("argument", model.ArgPenalty).
			WithDetail("count", len(opts.Penalties))
	}
	return nil
}
