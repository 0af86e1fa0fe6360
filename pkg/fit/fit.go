// Package fit drives the fitting lifecycle: registry lookup, molding,
// argument translation, the native call and post-processing into a
// FittedModel.
package fit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidysurv/censored/pkg/args"
	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/frame"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"
	"github.com/tidysurv/censored/pkg/telemetry"
)

// Options controls fitting.
type Options struct {
	// CatchErrors attaches native failures to the returned model instead of
	// returning them.
	CatchErrors bool
}

// Fitter fits model specifications against a registry.
type Fitter struct {
	registry   *registry.Registry
	translator *args.Translator
	opts       Options
}

// NewFitter creates a fitter. A nil translator uses the default evaluator.
func NewFitter(reg *registry.Registry, tr *args.Translator, opts Options) *Fitter {
	if tr == nil {
		tr = args.NewTranslator(nil, nil)
	}
	return &Fitter{registry: reg, translator: tr, opts: opts}
}

// Fit trains spec on data using the formula.
func (f *Fitter) Fit(ctx context.Context, spec model.Spec, form *formula.Formula, data *frame.Frame) (*model.FittedModel, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if form == nil || data == nil {
		return nil, model.NewInvalidArgumentError("formula and data are required", nil).
			WithCode(model.ErrCodeMissingArgument).
			WithEngine(spec.Family, spec.Engine)
	}

	recipe, err := f.registry.Lookup(spec.Family, spec.Engine)
	if err != nil {
		return nil, err
	}

	ic := telemetry.StartFit(ctx, spec.Family, spec.Engine)
	fitted, err := f.fit(ic, spec, recipe, form, data)
	if err != nil {
		ic.End(err)
		return nil, err
	}
	ic.End(fitted.Err())
	return fitted, nil
}

func (f *Fitter) fit(ic *telemetry.InstrumentedContext, spec model.Spec, recipe *registry.EngineRecipe, form *formula.Formula, data *frame.Frame) (*model.FittedModel, error) {
	ctx := ic.Ctx

	bp, x, y, err := formula.Mold(form, data, recipe.Encoding)
	if err != nil {
		return nil, model.NewInvalidArgumentError("cannot build training data", err).
			WithCode(model.ErrCodeBadData).
			WithEngine(spec.Family, spec.Engine).
			WithOperation("fit")
	}
	ic.SetAttributes(telemetry.AttrRows.Int(x.NRow()))

	native, err := f.translator.Translate(ctx, spec, recipe, args.EnvFrom(bp, x, y))
	if err != nil {
		return nil, err
	}

	resolved := spec
	for name, a := range native.Resolved {
		resolved = resolved.WithArg(name, a)
	}

	fitted := &model.FittedModel{
		ID:         uuid.NewString(),
		Kind:       recipe.Kind,
		Spec:       resolved,
		Formula:    form,
		Blueprint:  bp,
		NativeArgs: native.Args,
		Penalty:    native.Penalty,
	}
	ic.SetAttributes(telemetry.AttrFitID.String(fitted.ID), telemetry.AttrEngineKind.String(string(recipe.Kind)))
	logger := ic.Logger.WithFitID(fitted.ID)

	start := time.Now()
	raw, err := recipe.Fit.Func(ctx, &registry.FitInput{
		X:       x,
		Outcome: y,
		Args:    native.Args,
		Penalty: native.Penalty,
	})
	fitted.Elapsed = time.Since(start)
	fitted.FittedAt = start.UTC()

	if err != nil {
		if f.opts.CatchErrors {
			fitted.FitErr = err
			logger.WithError(err).Warn("native fit failed; error attached to the model")
			return fitted, nil
		}
		return nil, model.NewNativeFitFailure("model fit failed", err).
			WithCode(model.ErrCodeFitFailed).
			WithEngine(spec.Family, spec.Engine).
			WithOperation("fit")
	}

	if err := Postprocess(raw, fitted); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"rows":       x.NRow(),
		"columns":    len(x.Columns),
		"elapsed_ms": fitted.Elapsed.Milliseconds(),
	}).Info("model fitted")
	return fitted, nil
}

// Postprocess stores the native fit on the model. Path models additionally
// move the native's training copy into the model's training cache.
func Postprocess(raw model.NativeFit, fitted *model.FittedModel) error {
	if raw == nil {
		return fmt.Errorf("engine %s/%s returned no fit", fitted.Spec.Family, fitted.Spec.Engine)
	}
	fitted.Native = raw

	if fitted.Kind != model.EngineKindPath {
		return nil
	}

	if _, ok := raw.(model.PathFit); !ok {
		return model.NewConfigurationError(fmt.Sprintf("path engine returned %T without a penalty path", raw), nil).
			WithEngine(fitted.Spec.Family, fitted.Spec.Engine)
	}
	if carrier, ok := raw.(model.TrainingCarrier); ok {
		fitted.TrainingCache = carrier.DetachTraining()
	}
	return nil
}
