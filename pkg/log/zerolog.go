package log

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// zerologLogger adapts zerolog.Logger to the Logger interface.
type zerologLogger struct {
	z     zerolog.Logger
	level Level
}

// NewZerologLogger returns a Logger backed by zerolog. With console set, output
// is the human readable zerolog.ConsoleWriter; otherwise one JSON object per line.
func NewZerologLogger(w io.Writer, level Level, console bool) Logger {
	out := w
	if console {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	z := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologLogger{z: z, level: level}
}

// InstallWarnings routes errors.Warn through the given logger when it is a
// zerolog backed Logger. Warnings implementing zerolog.LogObjectMarshaler are
// embedded as structured fields.
func InstallWarnings(l Logger) {
	zl, ok := l.(*zerologLogger)
	if !ok {
		errors.SetZerologWarnFunc(func(w error) {
			l.Warn(w.Error())
		})
		return
	}
	errors.SetZerologWarnFunc(func(w error) {
		event := zl.z.Warn()
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			event = event.EmbedObject(m)
		}
		event.Msg(w.Error())
	})
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (z *zerologLogger) Debug(msg string, fields ...any) { z.emit(z.z.Debug(), msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any)  { z.emit(z.z.Info(), msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { z.emit(z.z.Warn(), msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { z.emit(z.z.Error(), msg, fields) }

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.z.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			ctx = ctx.AnErr(key, err)
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{z: ctx.Logger(), level: z.level}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= z.level
}

// emit attaches key/value pairs to the event. Errors get their cockroachdb
// stack trace under StacktraceAttrKey, as the slog backend does.
func (z *zerologLogger) emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
			if st := stacktraceOf(v); st != "" {
				e = e.Str(StacktraceAttrKey, st)
			}
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case float64:
			e = e.Float64(key, v)
		case bool:
			e = e.Bool(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
