package model

import "fmt"

// Family is a model family such as survival_reg.
type Family string

const (
	// FamilySurvivalReg is parametric (accelerated failure time) regression.
	FamilySurvivalReg Family = "survival_reg"

	// FamilyProportionalHazards is Cox proportional hazards regression.
	FamilyProportionalHazards Family = "proportional_hazards"
)

// Mode is the model mode. Only censored regression is handled here.
type Mode string

// ModeCensoredRegression is the only supported mode.
const ModeCensoredRegression Mode = "censored regression"

// EngineName names an external fitting routine.
type EngineName string

const (
	EngineSurvival EngineName = "survival"
	EngineFlexsurv EngineName = "flexsurv"
	EngineGlmnet   EngineName = "glmnet"
)

// EngineKind tags a fitted model with how predictions must be dispatched.
type EngineKind string

const (
	// EngineKindStandard engines produce a single model per fit.
	EngineKindStandard EngineKind = "standard"

	// EngineKindPath engines produce a path of models indexed by penalty.
	EngineKindPath EngineKind = "path"
)

// PredictionType is one of the standardized prediction representations.
type PredictionType string

const (
	TypeTime       PredictionType = "time"
	TypeSurvival   PredictionType = "survival"
	TypeHazard     PredictionType = "hazard"
	TypeQuantile   PredictionType = "quantile"
	TypeLinearPred PredictionType = "linear_pred"
)

// PredictionTypes lists every supported type in display order.
var PredictionTypes = []PredictionType{TypeTime, TypeSurvival, TypeHazard, TypeQuantile, TypeLinearPred}

// ParsePredictionType validates a prediction type name.
func ParsePredictionType(s string) (PredictionType, error) {
	for _, t := range PredictionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", NewInvalidArgumentError(fmt.Sprintf("unknown prediction type %q", s), nil).
		WithDetail("type", s)
}

// NeedsEvalTime reports whether the type requires evaluation times.
func (t PredictionType) NeedsEvalTime() bool {
	return t == TypeSurvival || t == TypeHazard
}

// IsCurve reports whether the type produces a nested curve per row.
func (t PredictionType) IsCurve() bool {
	return t == TypeSurvival || t == TypeHazard || t == TypeQuantile
}
