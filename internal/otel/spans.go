package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for gene store spans.
var (
	AttrGeneID     = attribute.Key("genebank.gene.id")
	AttrCategory   = attribute.Key("genebank.gene.category")
	AttrScope      = attribute.Key("genebank.gene.scope")
	AttrScore      = attribute.Key("genebank.gene.score")
	AttrInstanceID = attribute.Key("genebank.instance.id")
	AttrUserID     = attribute.Key("genebank.user.id")
	AttrTaskID     = attribute.Key("genebank.task.id")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (platform API, relay).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
