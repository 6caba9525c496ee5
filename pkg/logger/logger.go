package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// New returns a JSON logger. level overrides the environment default when it
// names a slog level ("debug", "info", "warn", "error").
func New(appEnv, level string) *slog.Logger {
	lvl := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		lvl = slog.LevelDebug
	}
	if level != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(strings.ToUpper(level))); err == nil {
			lvl = parsed
		}
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default(). When ctx
// carries a sampled span its trace id is attached.
func From(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if v, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && v != nil {
		l = v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With("trace_id", sc.TraceID().String())
	}
	return l
}
