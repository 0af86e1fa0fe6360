package model

import (
	"time"

	"github.com/tidysurv/censored/pkg/formula"
)

// NativeFit is the opaque object returned by an engine's fitting routine.
type NativeFit interface{}

// PathFit is implemented by native fits that hold a whole regularization
// path rather than a single model.
type PathFit interface {
	// Penalties returns the trained strengths in the order the native fit
	// stores them.
	Penalties() []float64
}

// TrainingCarrier is implemented by native fits that keep a copy of their
// training data because survival-curve prediction needs it.
type TrainingCarrier interface {
	// DetachTraining removes the training copy from the native fit and
	// returns it so it can be cached on the fitted model.
	DetachTraining() *TrainingData

	// AttachTraining restores a cached training copy.
	AttachTraining(*TrainingData)
}

// TrainingData is the predictor matrix and response cached for path models.
type TrainingData struct {
	Columns []string    `json:"columns"`
	X       [][]float64 `json:"x"`
	Time    []float64   `json:"time"`
	Status  []float64   `json:"status"`
}

// FittedModel wraps a native fit together with everything needed to predict
// from it.
type FittedModel struct {
	ID        string             `json:"id"`
	Kind      EngineKind         `json:"kind"`
	Spec      Spec               `json:"spec"`
	Formula   *formula.Formula   `json:"formula"`
	Blueprint *formula.Blueprint `json:"blueprint"`
	Native    NativeFit          `json:"-"`

	// NativeArgs are the translated arguments the native routine received.
	NativeArgs map[string]interface{} `json:"native_args,omitempty"`

	// TrainingCache is set for path models only.
	TrainingCache *TrainingData `json:"training_cache,omitempty"`

	// Penalty is the single strength the user selected at specification
	// time, if any. Only meaningful for path models.
	Penalty *float64 `json:"penalty,omitempty"`

	Elapsed  time.Duration `json:"elapsed"`
	FittedAt time.Time     `json:"fitted_at"`

	// FitErr holds the captured failure when fitting ran in catch mode.
	FitErr error `json:"-"`
}

// Failed reports whether the fit was captured as a failure.
func (m *FittedModel) Failed() bool {
	return m.FitErr != nil
}

// Err returns the classified error for a failed fit, or nil.
func (m *FittedModel) Err() error {
	if m.FitErr == nil {
		return nil
	}
	return NewNativeFitFailure("model fit failed", m.FitErr).
		WithCode(ErrCodeFitFailed).
		WithEngine(m.Spec.Family, m.Spec.Engine)
}

// PathPenalties returns the trained strengths of a path model, or nil.
func (m *FittedModel) PathPenalties() []float64 {
	if p, ok := m.Native.(PathFit); ok {
		return p.Penalties()
	}
	return nil
}
