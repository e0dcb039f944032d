// Package log provides structured logging for the LightGBM control layer.
//
// It defines a minimal Logger interface with key-value structured fields and
// a zerolog-backed default implementation. Training progress, dataset
// construction and engine-call failures all go through this package rather
// than writing to stdout directly, so callers can redirect or silence the
// layer as a whole.
package log

// Logger is a structured logger with leveled output and field chaining.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)

	// Info logs general operational information, such as per-iteration
	// evaluation results.
	Info(msg string, fields ...any)

	// Warn logs potentially problematic situations that do not stop the
	// operation.
	Warn(msg string, fields ...any)

	// Error logs failures. If the first field is an error its structured
	// form is attached to the event.
	Error(msg string, fields ...any)

	// With returns a Logger that includes the given fields in every
	// subsequent message.
	With(fields ...any) Logger
}

// Level filters log output.
type Level int

// Levels, ordered from most to least verbose.
const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
	// LevelSilent discards everything.
	LevelSilent
)

// String returns the name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelSilent:
		return "SILENT"
	default:
		return "UNKNOWN"
	}
}
