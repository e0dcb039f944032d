package log

import "sync"

// Entry is one captured log record.
type Entry struct {
	Level   Level
	Message string
	Fields  []any
}

// CaptureLogger records every message in memory. It is intended for tests
// that assert on training progress output.
type CaptureLogger struct {
	mu      sync.Mutex
	with    []any
	entries *[]Entry
}

// NewCaptureLogger creates an empty capture logger.
func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{entries: new([]Entry)}
}

// Entries returns a copy of everything logged so far, including through
// derived With loggers.
func (c *CaptureLogger) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(*c.entries))
	copy(out, *c.entries)
	return out
}

func (c *CaptureLogger) record(level Level, msg string, fields []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]any, 0, len(c.with)+len(fields))
	all = append(all, c.with...)
	all = append(all, fields...)
	*c.entries = append(*c.entries, Entry{Level: level, Message: msg, Fields: all})
}

// Debug records a debug entry.
func (c *CaptureLogger) Debug(msg string, fields ...any) { c.record(LevelDebug, msg, fields) }

// Info records an info entry.
func (c *CaptureLogger) Info(msg string, fields ...any) { c.record(LevelInfo, msg, fields) }

// Warn records a warn entry.
func (c *CaptureLogger) Warn(msg string, fields ...any) { c.record(LevelWarn, msg, fields) }

// Error records an error entry.
func (c *CaptureLogger) Error(msg string, fields ...any) { c.record(LevelError, msg, fields) }

// With returns a logger sharing the same entry sink with fields prepended.
func (c *CaptureLogger) With(fields ...any) Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	with := make([]any, 0, len(c.with)+len(fields))
	with = append(with, c.with...)
	with = append(with, fields...)
	return &CaptureLogger{with: with, entries: c.entries}
}
