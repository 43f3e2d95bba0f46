// Package trace owns the OpenTelemetry tracer provider.
package trace

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"seller-market/internal/types"
)

const serviceName = "seller-market"

var (
	mu             sync.Mutex
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	sink           io.Closer
)

// Init installs a span exporter unless LOG_TRACING_ENABLED is false. Spans
// go to stderr, or are appended to TRACE_OUTPUT when it names a file, so
// they never interleave with the JSON log on stdout. Calling it again after
// a successful init is a no-op.
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if os.Getenv("LOG_TRACING_ENABLED") == "false" || tracerProvider != nil {
		return nil
	}

	var (
		out io.Writer = os.Stderr
		opt           = []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	)
	if path := os.Getenv("TRACE_OUTPUT"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out, sink = f, f
		opt = nil
	}
	exporter, err := stdouttrace.New(append(opt, stdouttrace.WithWriter(out))...)
	if err != nil {
		return err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(serviceName)
	return nil
}

// Shutdown flushes buffered spans and closes the trace file.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp, f := tracerProvider, sink
	tracerProvider, tracer, sink = nil, nil, nil
	mu.Unlock()

	var err error
	if tp != nil {
		err = tp.Shutdown(ctx)
	}
	if f != nil {
		f.Close()
	}
	return err
}

// StartSpan starts a span tagged with the session run id. Without an
// initialized provider it returns the span already in ctx.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.Lock()
	t := tracer
	mu.Unlock()
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	if id := types.RunIDFrom(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("run_id", id)))
	}
	return t.Start(ctx, spanName, opts...)
}
