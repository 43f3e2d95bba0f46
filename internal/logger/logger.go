// Package logger is the process-wide slog logger. Every line carries the
// trading session id from the context and, when tracing is on, the trace and
// span ids of the active span.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	smtrace "seller-market/internal/trace"
	"seller-market/internal/types"
)

var (
	globalLogger    *slog.Logger
	detailedLogging bool
	tracingEnabled  bool
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or text
	DetailedLogging bool   // debug lines and caller source
	TracingEnabled  bool
	Output          io.Writer // defaults to stdout
}

// Init configures logging from LOG_LEVEL, LOG_FORMAT, LOG_DETAILED and
// LOG_TRACING_ENABLED.
func Init() error {
	return InitWithConfig(LogConfig{
		Level:           envOr("LOG_LEVEL", "INFO"),
		Format:          envOr("LOG_FORMAT", "json"),
		DetailedLogging: envOr("LOG_DETAILED", "false") == "true",
		TracingEnabled:  envOr("LOG_TRACING_ENABLED", "true") == "true",
	})
}

func InitWithConfig(config LogConfig) error {
	detailedLogging = config.DetailedLogging
	tracingEnabled = config.TracingEnabled

	level := parseLogLevel(config.Level)
	if detailedLogging && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	if tracingEnabled {
		if err := smtrace.Init(); err != nil {
			globalLogger.Warn("Failed to initialize OpenTelemetry tracer, tracing disabled", "error", err)
			tracingEnabled = false
		}
	}
	return nil
}

// Shutdown flushes pending spans
func Shutdown(ctx context.Context) error {
	return smtrace.Shutdown(ctx)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Debug(ctx context.Context, msg string, args ...any) {
	if detailedLogging {
		write(ctx, slog.LevelDebug, msg, 2, args...)
	}
}

func Info(ctx context.Context, msg string, args ...any) {
	write(ctx, slog.LevelInfo, msg, 2, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	write(ctx, slog.LevelWarn, msg, 2, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	write(ctx, slog.LevelError, msg, 2, args...)
}

// ErrorWithErr logs err under "error" and marks the active span failed.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	write(ctx, slog.LevelError, msg, 2, append([]any{"error", err}, args...)...)
}

// DebugSkip is Debug for wrappers; skip is the number of extra frames
// between the real caller and this function.
func DebugSkip(ctx context.Context, skip int, msg string, args ...any) {
	if detailedLogging {
		write(ctx, slog.LevelDebug, msg, 2+skip, args...)
	}
}

func InfoSkip(ctx context.Context, skip int, msg string, args ...any) {
	write(ctx, slog.LevelInfo, msg, 2+skip, args...)
}

func WarnSkip(ctx context.Context, skip int, msg string, args ...any) {
	write(ctx, slog.LevelWarn, msg, 2+skip, args...)
}

func ErrorWithErrSkip(ctx context.Context, skip int, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	write(ctx, slog.LevelError, msg, 2+skip, append([]any{"error", err}, args...)...)
}

func recordSpanError(ctx context.Context, err error) {
	if !tracingEnabled || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// write prepends the context attributes. skip counts frames from
// runtime.Caller up to the code that called the public helper.
func write(ctx context.Context, level slog.Level, msg string, skip int, args ...any) {
	prefix := make([]any, 0, 6)
	if id := types.RunIDFrom(ctx); id != "" {
		prefix = append(prefix, "run_id", id)
	}
	if tracingEnabled {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			prefix = append(prefix, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
		}
	}
	args = append(prefix, args...)

	if detailedLogging {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", slog.GroupValue(
					slog.String("function", fn.Name()),
					slog.String("file", file),
					slog.Int("line", line),
				))
			}
		}
	}

	l := globalLogger
	if l == nil {
		l = slog.Default()
	}
	l.Log(ctx, level, msg, args...)
}

// event writes a typed domain record and mirrors it as a span event.
func event(ctx context.Context, level slog.Level, kind, msg string, attrs []attribute.KeyValue, fields []any) {
	if tracingEnabled {
		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			span.AddEvent(strings.ToLower(kind), trace.WithAttributes(attrs...))
		}
	}
	args := make([]any, 0, 2+2*len(attrs)+len(fields))
	args = append(args, "type", kind)
	for _, a := range attrs {
		args = append(args, string(a.Key), a.Value.AsInterface())
	}
	write(ctx, level, msg, 3, append(args, fields...)...)
}

// Order records an order that was sent, or would have been sent in DRY_RUN.
// It is logged at INFO whatever the level.
func Order(ctx context.Context, account, isin, side string, price, volume int64, fields ...any) {
	event(ctx, slog.LevelInfo, "ORDER", "Order submitted", []attribute.KeyValue{
		attribute.String("account", account),
		attribute.String("isin", isin),
		attribute.String("side", side),
		attribute.Int64("price", price),
		attribute.Int64("volume", volume),
	}, fields)
}

// Risk records a capacity event that changed or blocked an order.
func Risk(ctx context.Context, account, eventType string, fields ...any) {
	event(ctx, slog.LevelWarn, "RISK", "Risk event", []attribute.KeyValue{
		attribute.String("account", account),
		attribute.String("event_type", eventType),
	}, fields)
}
