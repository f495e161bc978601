package events

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// handlerContext rebuilds a detached context for a subscriber so request
// cancellation does not reach background handlers, while trace and
// correlation IDs still link them to the request.
func handlerContext(evt Event) context.Context {
	ctx := ContextWithCorrelationID(context.Background(), evt.CorrelationID)
	if evt.TraceID == "" || evt.SpanID == "" {
		return ctx
	}

	traceID, err := trace.TraceIDFromHex(evt.TraceID)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(evt.SpanID)
	if err != nil {
		return ctx
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithSpanContext(ctx, parent)
}
