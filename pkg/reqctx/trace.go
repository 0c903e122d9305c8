package reqctx

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds OpenTelemetry-compatible trace context.
type TraceInfo struct {
	// TraceID is a 32-character hex string (128-bit).
	// Identifies the entire distributed trace.
	TraceID string

	// SpanID is a 16-character hex string (64-bit).
	// Identifies this specific operation within the trace.
	SpanID string

	// Sampled indicates whether this trace should be recorded.
	Sampled bool
}

// TraceFromSpan copies the identifiers of an OpenTelemetry span context.
// Returns nil if sc carries no trace.
func TraceFromSpan(sc trace.SpanContext) *TraceInfo {
	if !sc.HasTraceID() {
		return nil
	}
	return &TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
}

func WithTrace(ctx context.Context, info *TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

func TraceFromContext(ctx context.Context) (*TraceInfo, bool) {
	info, ok := ctx.Value(traceKey{}).(*TraceInfo)
	return info, ok && info != nil
}

// TraceIDFromContext returns "" outside a traced request.
func TraceIDFromContext(ctx context.Context) string {
	if info, ok := TraceFromContext(ctx); ok {
		return info.TraceID
	}
	return ""
}
