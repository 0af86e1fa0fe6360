package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error so callers can react without string matching.
type ErrorKind string

const (
	// KindConfiguration indicates an unregistered family, engine or
	// prediction type. It is fatal and never retried.
	KindConfiguration ErrorKind = "configuration"

	// KindInvalidArgument indicates a malformed or multi-valued argument
	// where a scalar is required.
	KindInvalidArgument ErrorKind = "invalid_argument"

	// KindAmbiguousStrength indicates a path-based model with several trained
	// strengths was asked for a single prediction without choosing one.
	KindAmbiguousStrength ErrorKind = "ambiguous_strength"

	// KindIncompatibleStrength indicates a requested strength the path cannot
	// produce a valid prediction for.
	KindIncompatibleStrength ErrorKind = "incompatible_strength"

	// KindNativeFitFailure indicates the external numerical routine failed.
	KindNativeFitFailure ErrorKind = "native_fit_failure"
)

// Error is a classified error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Family is the model family involved, if any.
	Family Family `json:"family,omitempty"`

	// Engine is the engine involved, if any.
	Engine EngineName `json:"engine,omitempty"`

	// Operation is the operation being performed (fit, predict, translate).
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details carries argument names, counts and strengths.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Family != "" || e.Engine != "" {
		msg += fmt.Sprintf(" (family=%s, engine=%s)", e.Family, e.Engine)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return e.Kind == t.Kind
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

// NewInvalidArgumentError creates an invalid argument error.
func NewInvalidArgumentError(message string, err error) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message, Err: err}
}

// NewAmbiguousStrengthError creates an ambiguous strength error.
func NewAmbiguousStrengthError(message string) *Error {
	return &Error{Kind: KindAmbiguousStrength, Message: message}
}

// NewIncompatibleStrengthError creates an incompatible strength error.
func NewIncompatibleStrengthError(message string) *Error {
	return &Error{Kind: KindIncompatibleStrength, Message: message}
}

// NewNativeFitFailure creates a native fit failure.
func NewNativeFitFailure(message string, err error) *Error {
	return &Error{Kind: KindNativeFitFailure, Message: message, Err: err}
}

// WithEngine adds family and engine context.
func (e *Error) WithEngine(family Family, engine EngineName) *Error {
	e.Family = family
	e.Engine = engine
	return e
}

// WithOperation adds operation context.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return hasKind(err, KindConfiguration) }

// IsInvalidArgument reports whether err is an invalid argument error.
func IsInvalidArgument(err error) bool { return hasKind(err, KindInvalidArgument) }

// IsAmbiguousStrength reports whether err is an ambiguous strength error.
func IsAmbiguousStrength(err error) bool { return hasKind(err, KindAmbiguousStrength) }

// IsIncompatibleStrength reports whether err is an incompatible strength error.
func IsIncompatibleStrength(err error) bool { return hasKind(err, KindIncompatibleStrength) }

// IsNativeFitFailure reports whether err is a native fit failure.
func IsNativeFitFailure(err error) bool { return hasKind(err, KindNativeFitFailure) }

// KindOf returns the kind of a classified error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Common error codes.
const (
	ErrCodeNotRegistered         = "NOT_REGISTERED"
	ErrCodeUnsupportedPrediction = "UNSUPPORTED_PREDICTION_TYPE"
	ErrCodeUnsupportedMode       = "UNSUPPORTED_MODE"
	ErrCodeMissingArgument       = "MISSING_ARGUMENT"
	ErrCodeScalarRequired        = "SCALAR_REQUIRED"
	ErrCodeOutOfRange            = "OUT_OF_RANGE"
	ErrCodeBadData               = "BAD_DATA"
	ErrCodeFitFailed             = "FIT_FAILED"
	ErrCodeExpressionFailed      = "EXPRESSION_FAILED"
)
