// Package model holds the shared vocabulary of censored regression: model
// specifications, fitted models, prediction options and standardized results,
// and the classified errors returned across the module.
//
// A Spec is immutable. Engine and argument setters return copies:
//
//	spec := model.ProportionalHazards().
//		WithPenalty(0.01).
//		WithEngine(model.EngineGlmnet, nil)
//
// Fitted models carry an EngineKind tag. Standard engines hold one model,
// path engines hold a whole regularization path and route predictions
// through penalty selection.
package model
