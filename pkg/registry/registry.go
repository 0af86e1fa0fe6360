package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
)

type engineKey struct {
	family model.Family
	engine model.EngineName
}

type predKey struct {
	engineKey
	typ model.PredictionType
}

// Builder collects registrations. It is safe for concurrent use, but the
// usual pattern is a single goroutine registering at startup followed by
// Build.
type Builder struct {
	mu      sync.Mutex
	engines map[engineKey]*EngineRecipe
	preds   map[predKey]*PredRecipe
	errs    []error
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{
		engines: make(map[engineKey]*EngineRecipe),
		preds:   make(map[predKey]*PredRecipe),
	}
}

// SetModelEngine registers an engine for a family.
func (b *Builder) SetModelEngine(family model.Family, engine model.EngineName, kind model.EngineKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := engineKey{family, engine}
	if _, exists := b.engines[k]; exists {
		b.errs = append(b.errs, fmt.Errorf("engine %s/%s registered twice", family, engine))
		return
	}
	b.engines[k] = &EngineRecipe{Family: family, Engine: engine, Kind: kind}
}

// SetModelArg registers a standardized to native argument mapping.
func (b *Builder) SetModelArg(family model.Family, engine model.EngineName, m ArgMapping) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.engine(family, engine, "argument "+m.Standard)
	if !ok {
		return
	}
	if _, dup := r.ArgFor(m.Standard); dup {
		b.errs = append(b.errs, fmt.Errorf("argument %q registered twice for %s/%s", m.Standard, family, engine))
		return
	}
	r.Args = append(r.Args, m)
}

// SetFit registers the fit recipe.
func (b *Builder) SetFit(family model.Family, engine model.EngineName, fit FitRecipe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.engine(family, engine, "fit recipe")
	if !ok {
		return
	}
	r.Fit = fit
	r.hasFit = true
}

// SetEncoding registers the predictor encoding rules.
func (b *Builder) SetEncoding(family model.Family, engine model.EngineName, enc formula.Encoding) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.engine(family, engine, "encoding")
	if !ok {
		return
	}
	r.Encoding = enc
	r.hasEncoding = true
}

// SetPred registers a prediction recipe.
func (b *Builder) SetPred(family model.Family, engine model.EngineName, typ model.PredictionType, pred PredRecipe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.engine(family, engine, "prediction "+string(typ)); !ok {
		return
	}
	k := predKey{engineKey{family, engine}, typ}
	if _, exists := b.preds[k]; exists {
		b.errs = append(b.errs, fmt.Errorf("prediction %s registered twice for %s/%s", typ, family, engine))
		return
	}
	p := pred
	b.preds[k] = &p
}

// engine must be called with mu held.
func (b *Builder) engine(family model.Family, engine model.EngineName, what string) (*EngineRecipe, bool) {
	r, ok := b.engines[engineKey{family, engine}]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%s set for unregistered engine %s/%s", what, family, engine))
	}
	return r, ok
}

// Build validates the registrations and returns an immutable registry.
func (b *Builder) Build() (*Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	errs := append([]error(nil), b.errs...)
	for k, r := range b.engines {
		if !r.hasFit || r.Fit.Func == nil {
			errs = append(errs, fmt.Errorf("engine %s/%s has no fit recipe", k.family, k.engine))
		}
		if !r.hasEncoding {
			errs = append(errs, fmt.Errorf("engine %s/%s has no encoding rules", k.family, k.engine))
		}
	}
	for k, p := range b.preds {
		if p.Func == nil {
			errs = append(errs, fmt.Errorf("prediction %s for %s/%s has no function", k.typ, k.family, k.engine))
		}
		if p.Post == nil {
			errs = append(errs, fmt.Errorf("prediction %s for %s/%s has no post-processor", k.typ, k.family, k.engine))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reg := &Registry{
		engines: make(map[engineKey]*EngineRecipe, len(b.engines)),
		preds:   make(map[predKey]*PredRecipe, len(b.preds)),
	}
	for k, r := range b.engines {
		cp := *r
		cp.Args = append([]ArgMapping(nil), r.Args...)
		reg.engines[k] = &cp
	}
	for k, p := range b.preds {
		cp := *p
		reg.preds[k] = &cp
	}
	return reg, nil
}

// Registry is the immutable table of engine and prediction recipes. It is
// safe for concurrent reads.
type Registry struct {
	engines map[engineKey]*EngineRecipe
	preds   map[predKey]*PredRecipe
}

// EngineInfo summarizes one registered engine.
type EngineInfo struct {
	Family model.Family           `json:"family"`
	Engine model.EngineName       `json:"engine"`
	Kind   model.EngineKind       `json:"kind"`
	Types  []model.PredictionType `json:"types"`
}

// Lookup returns the engine recipe for a family and engine.
func (r *Registry) Lookup(family model.Family, engine model.EngineName) (*EngineRecipe, error) {
	rec, ok := r.engines[engineKey{family, engine}]
	if !ok {
		msg := fmt.Sprintf("engine %q is not registered for %s", engine, family)
		if !r.hasFamily(family) {
			msg = fmt.Sprintf("model family %q is not registered", family)
		}
		return nil, model.NewConfigurationError(msg, nil).
			WithCode(model.ErrCodeNotRegistered).
			WithEngine(family, engine)
	}
	return rec, nil
}

// Prediction returns the prediction recipe for a type.
func (r *Registry) Prediction(family model.Family, engine model.EngineName, typ model.PredictionType) (*PredRecipe, error) {
	if _, err := r.Lookup(family, engine); err != nil {
		return nil, err
	}
	p, ok := r.preds[predKey{engineKey{family, engine}, typ}]
	if !ok {
		return nil, model.NewConfigurationError(
			fmt.Sprintf("prediction type %q is not supported by %s/%s", typ, family, engine), nil).
			WithCode(model.ErrCodeUnsupportedPrediction).
			WithEngine(family, engine).
			WithDetail("type", string(typ)).
			WithDetail("supported", r.Types(family, engine))
	}
	return p, nil
}

// Types lists the supported prediction types of an engine in display order.
func (r *Registry) Types(family model.Family, engine model.EngineName) []model.PredictionType {
	var out []model.PredictionType
	for _, t := range model.PredictionTypes {
		if _, ok := r.preds[predKey{engineKey{family, engine}, t}]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Engines lists every registered engine sorted by family then engine.
func (r *Registry) Engines() []EngineInfo {
	out := make([]EngineInfo, 0, len(r.engines))
	for k, rec := range r.engines {
		out = append(out, EngineInfo{
			Family: k.family,
			Engine: k.engine,
			Kind:   rec.Kind,
			Types:  r.Types(k.family, k.engine),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].Engine < out[j].Engine
	})
	return out
}

func (r *Registry) hasFamily(family model.Family) bool {
	for k := range r.engines {
		if k.family == family {
			return true
		}
	}
	return false
}
