package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var Logger zerolog.Logger

type ctxKey struct{}

type fields struct {
	sessionID string
	requestID string
}

func Init(serviceName string, level string, pretty bool) {
	InitTo(os.Stdout, serviceName, level, pretty)
}

// InitTo is Init with an explicit destination. The CLI logs to stderr so
// stdout stays parseable.
func InitTo(w io.Writer, serviceName string, level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// WithSession returns a context whose logger carries the offramp session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	f, _ := ctx.Value(ctxKey{}).(fields)
	f.sessionID = sessionID
	return context.WithValue(ctx, ctxKey{}, f)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	f, _ := ctx.Value(ctxKey{}).(fields)
	f.requestID = requestID
	return context.WithValue(ctx, ctxKey{}, f)
}

// WithContext returns the global logger enriched with the trace, request and
// session identifiers found on ctx.
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Logger.With()

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		l = l.Str("trace_id", sc.TraceID().String())
	}
	if f, ok := ctx.Value(ctxKey{}).(fields); ok {
		if f.requestID != "" {
			l = l.Str("request_id", f.requestID)
		}
		if f.sessionID != "" {
			l = l.Str("session_id", f.sessionID)
		}
	}

	lg := l.Logger()
	return &lg
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
