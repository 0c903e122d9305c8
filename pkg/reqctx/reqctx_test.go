package reqctx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestRequestMeta(t *testing.T) {
	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" {
		t.Error("empty context should have no request ID")
	}

	ctx = WithRequestMeta(ctx, &RequestMeta{RequestID: "rid-1", ClientIP: "10.0.0.1"})
	meta, ok := RequestMetaFromContext(ctx)
	if !ok || meta.ClientIP != "10.0.0.1" {
		t.Fatalf("meta = %+v, ok = %v", meta, ok)
	}
	if got := RequestIDFromContext(ctx); got != "rid-1" {
		t.Errorf("RequestIDFromContext = %q, want rid-1", got)
	}
}

func TestTraceFromSpan(t *testing.T) {
	if TraceFromSpan(trace.SpanContext{}) != nil {
		t.Error("empty span context should yield nil")
	}

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})

	ctx := WithTrace(context.Background(), TraceFromSpan(sc))
	if got := TraceIDFromContext(ctx); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("TraceIDFromContext = %q", got)
	}
	info, _ := TraceFromContext(ctx)
	if info.SpanID != "00f067aa0ba902b7" || !info.Sampled {
		t.Errorf("trace info = %+v", info)
	}
}

func TestNilValuesAreAbsent(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceFromSpan(trace.SpanContext{}))
	if _, ok := TraceFromContext(ctx); ok {
		t.Error("nil trace info should read as absent")
	}
	if got := TraceIDFromContext(ctx); got != "" {
		t.Errorf("TraceIDFromContext = %q, want empty", got)
	}

	ctx = WithRequestMeta(ctx, nil)
	if _, ok := RequestMetaFromContext(ctx); ok {
		t.Error("nil request meta should read as absent")
	}
}
