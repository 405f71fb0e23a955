package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for Focus spans.
var (
	AttrUserID     = attribute.Key("focus.user.id")
	AttrActorKind  = attribute.Key("focus.actor.kind")
	AttrEntityType = attribute.Key("focus.entity.type")
	AttrEntityID   = attribute.Key("focus.entity.id")
	AttrToolName   = attribute.Key("focus.tool.name")
	AttrSessionID  = attribute.Key("focus.mcp.session.id")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request.
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}
