package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rehome/internal/domain"
)

const instrumentationName = "github.com/neomorfeo/rehome/internal/adapter/otel"

// TracingStore wraps a domain.Store with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
// Lost version races are also counted, since they are expected outcomes
// that the span status alone would hide.
type TracingStore struct {
	next      domain.Store
	tracer    trace.Tracer
	conflicts metric.Int64Counter
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) (*TracingStore, error) {
	conflicts, err := otel.Meter(instrumentationName).Int64Counter("rehome.store.version_conflicts",
		metric.WithDescription("Conditional listing writes rejected because the version had moved on"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating version conflict counter: %w", err)
	}

	return &TracingStore{
		next:      next,
		tracer:    otel.Tracer(instrumentationName),
		conflicts: conflicts,
	}, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *TracingStore) CreateListing(ctx context.Context, l domain.Listing) error {
	ctx, span := s.tracer.Start(ctx, "Store.CreateListing",
		trace.WithAttributes(
			attribute.String("listing.id", l.ID),
			attribute.String("listing.moderation_status", string(l.ModerationStatus)),
		),
	)
	defer span.End()

	err := s.next.CreateListing(ctx, l)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func (s *TracingStore) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	ctx, span := s.tracer.Start(ctx, "Store.GetListing",
		trace.WithAttributes(attribute.String("listing.id", id)),
	)
	defer span.End()

	l, err := s.next.GetListing(ctx, id)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int64("listing.version", l.Version))
	}
	return l, err
}

func (s *TracingStore) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ListListings",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Moderation != nil {
		span.SetAttributes(attribute.String("filter.moderation_status", string(*filter.Moderation)))
	}
	if filter.Availability != nil {
		span.SetAttributes(attribute.String("filter.availability_status", string(*filter.Availability)))
	}
	if filter.Species != "" {
		span.SetAttributes(attribute.String("filter.species", filter.Species))
	}

	ls, err := s.next.ListListings(ctx, filter)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(ls)))
	}
	return ls, err
}

func (s *TracingStore) DeleteListing(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "Store.DeleteListing",
		trace.WithAttributes(attribute.String("listing.id", id)),
	)
	defer span.End()

	err := s.next.DeleteListing(ctx, id)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func (s *TracingStore) GetApplication(ctx context.Context, listingID, applicationID string) (domain.Application, error) {
	ctx, span := s.tracer.Start(ctx, "Store.GetApplication",
		trace.WithAttributes(
			attribute.String("listing.id", listingID),
			attribute.String("application.id", applicationID),
		),
	)
	defer span.End()

	a, err := s.next.GetApplication(ctx, listingID, applicationID)
	if err != nil {
		recordError(span, err)
	}
	return a, err
}

func (s *TracingStore) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ListApplications",
		trace.WithAttributes(
			attribute.String("filter.listing_id", filter.ListingID),
			attribute.String("filter.applicant_id", filter.ApplicantID),
			attribute.Bool("filter.active_only", filter.ActiveOnly),
		),
	)
	defer span.End()

	as, err := s.next.ListApplications(ctx, filter)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(as)))
	}
	return as, err
}

func (s *TracingStore) Commit(ctx context.Context, m domain.Mutation) error {
	ctx, span := s.tracer.Start(ctx, "Store.Commit",
		trace.WithAttributes(
			attribute.String("listing.id", m.Listing.ID),
			attribute.Int64("listing.expected_version", m.ExpectedVersion),
			attribute.String("listing.availability_status", string(m.Listing.AvailabilityStatus)),
			attribute.Int("mutation.inserts", len(m.Insert)),
			attribute.Int("mutation.updates", len(m.Update)),
		),
	)
	defer span.End()

	err := s.next.Commit(ctx, m)
	if errors.Is(err, domain.ErrVersionConflict) {
		s.conflicts.Add(ctx, 1)
	}
	if err != nil {
		recordError(span, err)
	}
	return err
}
