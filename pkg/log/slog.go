package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
)

// SetupLogger makes a Cloud Logging JSON slog logger on stdout the process
// default and returns it. It panics on an unknown level name.
func SetupLogger(level string) Logger {
	lvl, ok := ParseLevel(level)
	if !ok {
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
	l := newSlog(os.Stdout, lvl)
	slog.SetDefault(l)
	return &slogLogger{l: l}
}

// NewSlogLogger writes Cloud Logging JSON records to w.
func NewSlogLogger(w io.Writer, level Level) Logger {
	return &slogLogger{l: newSlog(w, level)}
}

// Cloud Logging が解釈するキー名
var cloudLoggingKeys = map[string]string{
	slog.LevelKey:   "severity",
	slog.MessageKey: "message",
	slog.SourceKey:  "logging.googleapis.com/sourceLocation",
}

func newSlog(w io.Writer, level Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.Level(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if k, ok := cloudLoggingKeys[a.Key]; ok && len(groups) == 0 {
				a.Key = k
			}
			return a
		},
	})
	return slog.New(errorDetails{h})
}

// ErrAttr puts err under ErrAttrKey.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, fields...) }

func (s *slogLogger) With(fields ...any) Logger { return &slogLogger{l: s.l.With(fields...)} }

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// errorDetails は最初のerror属性（ErrAttrKeyを優先）からスタックトレースと
// ヒントを取り出してレコードに足す。
type errorDetails struct {
	slog.Handler
}

func (h errorDetails) Handle(ctx context.Context, r slog.Record) error {
	if err := recordError(r); err != nil {
		if st := stacktraceOf(err); st != "" {
			r.AddAttrs(slog.String(StacktraceAttrKey, st))
		}
		if hints := errors.FlattenHints(err); hints != "" {
			r.AddAttrs(slog.String(SuggestionKey, hints))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h errorDetails) WithAttrs(attrs []slog.Attr) slog.Handler {
	return errorDetails{h.Handler.WithAttrs(attrs)}
}

func (h errorDetails) WithGroup(name string) slog.Handler {
	return errorDetails{h.Handler.WithGroup(name)}
}

func recordError(r slog.Record) (found error) {
	r.Attrs(func(a slog.Attr) bool {
		err, ok := a.Value.Any().(error)
		if !ok {
			return true
		}
		found = err
		return a.Key != ErrAttrKey
	})
	return found
}

// stacktraceOf returns the stack recorded by the innermost
// cockroachdb/errors WithStack, or "".
func stacktraceOf(err error) string {
	if d := errors.GetSafeDetails(err).SafeDetails; len(d) > 0 {
		return d[0]
	}
	return ""
}
