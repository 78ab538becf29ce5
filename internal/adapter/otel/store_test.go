package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/neomorfeo/rehome/internal/adapter/memory"
	adapter "github.com/neomorfeo/rehome/internal/adapter/otel"
	"github.com/neomorfeo/rehome/internal/adapter/storetest"
	"github.com/neomorfeo/rehome/internal/domain"
)

// --- Test provider setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func newTracingStore(t *testing.T, next domain.Store) *adapter.TracingStore {
	t.Helper()
	s, err := adapter.NewTracingStore(next)
	if err != nil {
		t.Fatalf("NewTracingStore: %v", err)
	}
	return s
}

// --- Tests ---

// The decorator must not change store semantics.
func TestTracingStore_Contract(t *testing.T) {
	setupTestTracer(t)
	storetest.Run(t, func(t *testing.T) domain.Store {
		return newTracingStore(t, memory.New())
	})
}

func TestTracingStore_CreateListing_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	s := newTracingStore(t, memory.New())

	l := storetest.NewListing("l-1", "owner-1", 0)
	if err := s.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "Store.CreateListing" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "Store.CreateListing")
	}

	assertAttribute(t, spans[0], "listing.id", "l-1")
	assertAttribute(t, spans[0], "listing.moderation_status", "pending")
}

func TestTracingStore_GetListing_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	s := newTracingStore(t, memory.New())

	_, err := s.GetListing(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestTracingStore_ListListings_RecordsResultCount(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := memory.New()
	s := newTracingStore(t, inner)
	ctx := context.Background()

	for _, id := range []string{"l-1", "l-2"} {
		if err := inner.CreateListing(ctx, storetest.NewListing(id, "owner-1", 0)); err != nil {
			t.Fatal(err)
		}
	}

	pending := domain.ModerationPending
	ls, err := s.ListListings(ctx, domain.ListingFilter{Moderation: &pending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ls) != 2 {
		t.Errorf("got %d listings, want 2", len(ls))
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	assertAttribute(t, spans[0], "result.count", "2")
	assertAttribute(t, spans[0], "filter.moderation_status", "pending")
}

func TestTracingStore_Commit_CountsVersionConflicts(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	inner := memory.New()
	s := newTracingStore(t, inner)
	ctx := context.Background()

	l := storetest.NewListing("l-1", "owner-1", 0)
	if err := inner.CreateListing(ctx, l); err != nil {
		t.Fatal(err)
	}

	next := l
	next.Version = 2
	if err := s.Commit(ctx, domain.Mutation{Listing: next, ExpectedVersion: 1}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	// Same expected version again: the listing has moved on.
	err := s.Commit(ctx, domain.Mutation{Listing: next, ExpectedVersion: 1})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	assertAttribute(t, spans[1], "listing.expected_version", "1")
	if spans[1].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[1].Status.Code, codes.Error)
	}

	if got := counterValue(t, reader, "rehome.store.version_conflicts"); got != 1 {
		t.Errorf("version conflicts = %d, want 1", got)
	}
}

// counterValue collects metrics and returns the summed value of an int64 counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q has data %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
