package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rehome/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, n domain.Notification) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("notification.type", string(n.Type)),
			attribute.String("listing.id", n.ListingID),
			attribute.String("actor.id", n.ActorID),
		),
	)
	defer span.End()

	if n.ApplicationID != "" {
		span.SetAttributes(attribute.String("application.id", n.ApplicationID))
	}

	err := p.next.Publish(ctx, n)
	if err != nil {
		recordError(span, err)
	}
	return err
}
