// Package log is the structured logging layer of the pipeline.
//
// Every stage takes a Logger and logs alternating key/value pairs using the
// keys in keys.go. Three implementations exist: zerolog (NewZerologLogger,
// the CLI default), slog JSON in Cloud Logging layout (NewSlogLogger,
// SetupLogger) and TestLogger for assertions in tests.
//
//	logger := log.NewZerologLogger(os.Stderr, log.LevelInfo, true).
//	    With(log.ComponentKey, "tuning")
//	logger.Info("trial finished", log.TrialIDKey, id, log.ObjectiveKey, 0.91)
package log

import (
	"context"
	"strings"
)

// Logger has the method set of *slog.Logger minus the context variants.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	// Error logs at error level. Put the error under ErrAttrKey so the
	// backend can attach its stack trace.
	Error(msg string, fields ...any)
	With(fields ...any) Logger
	Enabled(ctx context.Context, level Level) bool
}

// Level uses the numeric values of slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

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
	}
	return "UNKNOWN"
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// An empty name means info. ok is false for anything else.
func ParseLevel(name string) (lvl Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "", "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

type nop struct{}

// Nop discards everything. Constructors use it when no logger is given.
func Nop() Logger { return nop{} }

func (nop) Debug(string, ...any)                {}
func (nop) Info(string, ...any)                 {}
func (nop) Warn(string, ...any)                 {}
func (nop) Error(string, ...any)                {}
func (n nop) With(...any) Logger                { return n }
func (nop) Enabled(context.Context, Level) bool { return false }
