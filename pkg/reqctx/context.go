package reqctx

import (
	"context"
	"time"
)

type (
	requestMetaKey struct{}
	traceKey       struct{}
)

// RequestMeta describes the inbound HTTP request a unit of work serves.
type RequestMeta struct {
	RequestID   string
	ClientIP    string
	UserAgent   string
	RequestedAt time.Time
}

func WithRequestMeta(ctx context.Context, meta *RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext reports false for contexts that did not come
// through the request id middleware, such as cron sweeps and CLI commands.
func RequestMetaFromContext(ctx context.Context) (*RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(*RequestMeta)
	return meta, ok && meta != nil
}

func RequestIDFromContext(ctx context.Context) string {
	if meta, ok := RequestMetaFromContext(ctx); ok {
		return meta.RequestID
	}
	return ""
}
