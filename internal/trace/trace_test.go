package trace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"seller-market/internal/types"
)

func TestStartSpanWithoutInitIsNoop(t *testing.T) {
	ctx := context.Background()
	got, span := StartSpan(ctx, "engine.Execute")
	defer span.End()
	if got != ctx {
		t.Error("context should be returned unchanged")
	}
	if span.SpanContext().IsValid() {
		t.Error("span should be the no-op span")
	}
}

func TestSpansWrittenToTraceOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.jsonl")
	t.Setenv("LOG_TRACING_ENABLED", "true")
	t.Setenv("TRACE_OUTPUT", path)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	ctx := types.WithRunID(context.Background(), "run-7")
	_, span := StartSpan(ctx, "auth.Token")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a recording span")
	}
	span.End()

	if err := Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"auth.Token"`) || !strings.Contains(string(b), "run-7") {
		t.Errorf("span not exported: %s", b)
	}
}

func TestDisabledByEnv(t *testing.T) {
	t.Setenv("LOG_TRACING_ENABLED", "false")
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	_, span := StartSpan(context.Background(), "eod.Reconcile")
	if span.SpanContext().IsValid() {
		t.Error("tracing disabled but span recorded")
	}
}
