// Package reqctx provides centralized request context management.
//
// This package is the single source of truth for request-scoped data
// carried through the queue service: request metadata and tracing
// information.
//
// # Context Keys
//
// All context keys are private unexported types to prevent collisions.
// Access is provided through type-safe getter and setter functions.
//
// # Usage
//
// Setting values (typically in middleware):
//
//	ctx = reqctx.WithRequestMeta(ctx, &reqctx.RequestMeta{
//	    RequestID:   "abc-123",
//	    ClientIP:    "192.168.1.1",
//	    UserAgent:   "Mozilla/5.0",
//	    RequestedAt: time.Now(),
//	})
//
// Getting values (in handlers, services, etc.):
//
//	meta, ok := reqctx.RequestMetaFromContext(ctx)
//	rid := reqctx.RequestIDFromContext(ctx)
//
// # Tracing
//
// When OpenTelemetry tracing is enabled the HTTP middleware copies the
// active span's identifiers:
//
//	ctx = reqctx.WithTrace(ctx, reqctx.TraceFromSpan(span.SpanContext()))
//
// # Contracts
//
// The following contracts are guaranteed:
//
//   - RequestMeta is always set by HTTP middleware for all requests
//   - TraceInfo is set when distributed tracing is enabled
package reqctx
