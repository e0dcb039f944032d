// Package errors provides the structured error taxonomy for the LightGBM
// control layer.
//
// Every error type carries enough context (field name, expected vs. actual
// kind or shape, engine error text) to diagnose a failure without inspecting
// internals. Constructors attach a stack trace via cockroachdb/errors, and
// each type implements zerolog's ObjectMarshaler so failures log as
// structured events.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ShapeError reports a dimensionality or length mismatch: an input that is
// not 1-D where a flat buffer is required, a matrix that is not 2-D, or a
// result buffer whose length disagrees with what was requested.
type ShapeError struct {
	Op       string
	Expected int
	Got      int
	Detail   string
}

func (e *ShapeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("lightgbm: %s: %s (expected %d, got %d)", e.Op, e.Detail, e.Expected, e.Got)
	}
	return fmt.Sprintf("lightgbm: %s: shape mismatch, expected %d, got %d", e.Op, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured mismatch to a zerolog event.
func (e *ShapeError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("detail", e.Detail).
		Str("type", "ShapeError")
}

// NewShapeError creates a ShapeError with a stack trace.
func NewShapeError(op string, expected, got int, detail string) error {
	return errors.WithStack(&ShapeError{Op: op, Expected: expected, Got: got, Detail: detail})
}

// TypeKindError reports an unsupported or mismatched element kind: a host
// value the marshaling layer cannot represent, or a dataset field set or
// returned with the wrong kind.
type TypeKindError struct {
	Op       string
	Expected string
	Got      string
}

func (e *TypeKindError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("lightgbm: %s: expected %s, got %s", e.Op, e.Expected, e.Got)
	}
	return fmt.Sprintf("lightgbm: %s: unsupported type %s", e.Op, e.Got)
}

// MarshalZerologObject adds the structured kind mismatch to a zerolog event.
func (e *TypeKindError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("operation", e.Op).
		Str("expected", e.Expected).
		Str("got", e.Got).
		Str("type", "TypeKindError")
}

// NewTypeKindError creates a TypeKindError with a stack trace.
func NewTypeKindError(op, expected, got string) error {
	return errors.WithStack(&TypeKindError{Op: op, Expected: expected, Got: got})
}

// MissingLabelError reports a dataset constructed without a label, neither
// supplied by the caller nor embedded in a file source.
type MissingLabelError struct {
	Source string
}

func (e *MissingLabelError) Error() string {
	return fmt.Sprintf("lightgbm: dataset from %s has no label; a constructed dataset requires one", e.Source)
}

// MarshalZerologObject adds the data source description to a zerolog event.
func (e *MissingLabelError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("source", e.Source).Str("type", "MissingLabelError")
}

// NewMissingLabelError creates a MissingLabelError with a stack trace.
func NewMissingLabelError(source string) error {
	return errors.WithStack(&MissingLabelError{Source: source})
}

// LineageMismatchError reports an attempt to mix datasets with different
// continued-training predictors on one booster.
type LineageMismatchError struct {
	Op string
}

func (e *LineageMismatchError) Error() string {
	return fmt.Sprintf("lightgbm: %s: dataset does not share the booster's continuation predictor", e.Op)
}

// MarshalZerologObject adds the rejected operation to a zerolog event.
func (e *LineageMismatchError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("operation", e.Op).Str("type", "LineageMismatchError")
}

// NewLineageMismatchError creates a LineageMismatchError with a stack trace.
func NewLineageMismatchError(op string) error {
	return errors.WithStack(&LineageMismatchError{Op: op})
}

// EngineCallError reports a nonzero status from the external engine,
// carrying the engine's own error text.
type EngineCallError struct {
	Call    string
	Message string
}

func (e *EngineCallError) Error() string {
	return fmt.Sprintf("lightgbm: engine call %s failed: %s", e.Call, e.Message)
}

// MarshalZerologObject adds the failed call and engine text to a zerolog event.
func (e *EngineCallError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("call", e.Call).
		Str("engine_message", e.Message).
		Str("type", "EngineCallError")
}

// NewEngineCallError creates an EngineCallError with a stack trace.
func NewEngineCallError(call, message string) error {
	return errors.WithStack(&EngineCallError{Call: call, Message: message})
}

// ConfigError reports an unrecognized or malformed parameter.
type ConfigError struct {
	Param  string
	Reason string
	Value  interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("lightgbm: parameter %q: %s (got: %v)", e.Param, e.Reason, e.Value)
}

// MarshalZerologObject adds the parameter context to a zerolog event.
func (e *ConfigError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigError")
}

// NewConfigError creates a ConfigError with a stack trace.
func NewConfigError(param, reason string, value interface{}) error {
	return errors.WithStack(&ConfigError{Param: param, Reason: reason, Value: value})
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}
