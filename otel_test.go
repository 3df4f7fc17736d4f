package aggregator

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupMetricsTest installs an in-memory meter provider and returns the
// reader plus a cleanup restoring the original provider.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	return reader, func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("error shutting down meter provider: %v", err)
		}
	}
}

func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	return exporter, func() {
		otel.SetTracerProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("error shutting down tracer provider: %v", err)
		}
	}
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is not an int64 sum: %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestPublishMetrics(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	ctx := context.Background()
	agg := New("metrics-test", WithTracing(false))
	defer agg.Close()

	rec := NewRecorder[Ping]()
	if _, err := Subscribe(agg, rec.Handler()); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := agg.Publish(ctx, Ping{ID: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := agg.Publish(ctx, Ping{ID: 2}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	published := findMetric(&rm, "aggregator.published")
	if published == nil {
		t.Fatal("aggregator.published not recorded")
	}
	if got := sumInt64(t, published); got != 2 {
		t.Errorf("expected 2 published, got %d", got)
	}

	handled := findMetric(&rm, "aggregator.handled")
	if handled == nil {
		t.Fatal("aggregator.handled not recorded")
	}
	if got := sumInt64(t, handled); got != 2 {
		t.Errorf("expected 2 handled, got %d", got)
	}

	subscriptions := findMetric(&rm, "aggregator.subscriptions")
	if subscriptions == nil {
		t.Fatal("aggregator.subscriptions not recorded")
	}
	if got := sumInt64(t, subscriptions); got != 1 {
		t.Errorf("expected 1 subscription, got %d", got)
	}
}

func TestMetricsDisabled(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	ctx := context.Background()
	agg := New("metrics-off", WithMetrics(false), WithTracing(false), WithRecovery(false))
	defer agg.Close()

	if agg.metrics != nil {
		t.Error("instruments created with metrics disabled")
	}

	rec := NewRecorder[Ping]()
	sub, err := Subscribe(agg, rec.Handler())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := agg.Publish(ctx, Ping{ID: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !agg.Remove(sub) {
		t.Fatal("Remove failed")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if m := findMetric(&rm, "aggregator.published"); m != nil {
		t.Error("aggregator.published recorded with metrics disabled")
	}
	if m := findMetric(&rm, "aggregator.subscriptions"); m != nil {
		t.Error("aggregator.subscriptions recorded with metrics disabled")
	}
}

func TestHandlerErrorMetrics(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	ctx := context.Background()
	agg := New("metrics-test", WithTracing(false))
	defer agg.Close()

	rec := NewRecorder[Ping]()
	rec.FailWith(context.DeadlineExceeded)
	SubscribeAsync(agg, rec.AsyncHandler())

	if err := agg.PublishAsync(ctx, Ping{}); err == nil {
		t.Fatal("expected handler error")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	failures := findMetric(&rm, "aggregator.handler_errors")
	if failures == nil {
		t.Fatal("aggregator.handler_errors not recorded")
	}
	if got := sumInt64(t, failures); got != 1 {
		t.Errorf("expected 1 handler error, got %d", got)
	}
}

func TestPublishTracing(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	ctx := context.Background()
	agg := New("tracing-test", WithMetrics(false))
	defer agg.Close()

	rec := NewRecorder[Ping]()
	Subscribe(agg, rec.Handler())
	if err := agg.Publish(ctx, Ping{ID: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if !strings.HasSuffix(span.Name, ".publish") {
		t.Errorf("unexpected span name %q", span.Name)
	}
	if span.SpanKind != trace.SpanKindProducer {
		t.Errorf("unexpected span kind %v", span.SpanKind)
	}
	var sawType bool
	for _, attr := range span.Attributes {
		if string(attr.Key) == spanKeyEventType {
			sawType = true
			if got := attr.Value.AsString(); !strings.HasSuffix(got, "Ping") {
				t.Errorf("unexpected event type attribute %q", got)
			}
		}
	}
	if !sawType {
		t.Error("span missing event type attribute")
	}
}
