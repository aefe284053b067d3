package fanlog

import (
	"context"
)

// ContextKey is a type for context value keys.
// Using a custom type prevents collisions with other packages.
type ContextKey string

// Well-known context keys. Values stored under them with context.WithValue are copied into
// the extras of records emitted through Logger.WithContext.
const (
	ContextKeyRequestID   ContextKey = "request_id"
	ContextKeyTraceID     ContextKey = "trace_id"
	ContextKeySpanID      ContextKey = "span_id"
	ContextKeyUserID      ContextKey = "user_id"
	ContextKeySessionID   ContextKey = "session_id"
	ContextKeyCorrelation ContextKey = "correlation_id"
	ContextKeyComponent   ContextKey = "component"
	ContextKeyOperation   ContextKey = "operation"
)

var wellKnownKeys = []ContextKey{
	ContextKeyRequestID,
	ContextKeyTraceID,
	ContextKeySpanID,
	ContextKeyUserID,
	ContextKeySessionID,
	ContextKeyCorrelation,
	ContextKeyComponent,
	ContextKeyOperation,
}

type extrasKey struct{}

// Contextualize returns a child of ctx whose extras are the parent's overlaid with fields.
// ctx itself is never changed, so the previous extras are back in effect as soon as the
// child goes out of use, whichever way the scope is left.
func Contextualize(ctx context.Context, fields Fields) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, extrasKey{}, FieldsFromContext(ctx).Merge(fields))
}

// Scope runs fn with a contextualized child of ctx and returns fn's error.
//
//	err := fanlog.Scope(ctx, fanlog.Fields{"job": id}, func(ctx context.Context) error {
//		log.WithContext(ctx).Info("running")
//		return run(ctx)
//	})
func Scope(ctx context.Context, fields Fields, fn func(ctx context.Context) error) error {
	return fn(Contextualize(ctx, fields))
}

// FieldsFromContext returns the extras carried by ctx: well-known keys first, then
// Contextualize extras. The result is a fresh map.
func FieldsFromContext(ctx context.Context) Fields {
	out := Fields{}
	if ctx == nil {
		return out
	}
	for _, key := range wellKnownKeys {
		if value := ctx.Value(key); value != nil {
			out[string(key)] = value
		}
	}
	if f, ok := ctx.Value(extrasKey{}).(Fields); ok {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}

// TraceContext adds tracing identifiers to a context.
func TraceContext(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyTraceID, traceID)
	if spanID != "" {
		ctx = context.WithValue(ctx, ContextKeySpanID, spanID)
	}
	return ctx
}
