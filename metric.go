package aggregator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments holds the OpenTelemetry instruments for one aggregator.
// Instrument creation errors are ignored; the otel SDK returns usable no-op
// instruments alongside them.
type instruments struct {
	published     metric.Int64Counter
	handled       metric.Int64Counter
	handlerErrors metric.Int64Counter
	subscriptions metric.Int64UpDownCounter
}

func newInstruments(name string) *instruments {
	meter := otel.Meter(name)
	published, _ := meter.Int64Counter("aggregator.published",
		metric.WithDescription("Total number of events published"))
	handled, _ := meter.Int64Counter("aggregator.handled",
		metric.WithDescription("Total number of handler invocations completed"))
	handlerErrors, _ := meter.Int64Counter("aggregator.handler_errors",
		metric.WithDescription("Total number of handler invocations that failed"))
	subscriptions, _ := meter.Int64UpDownCounter("aggregator.subscriptions",
		metric.WithDescription("Current number of subscriptions"))
	return &instruments{
		published:     published,
		handled:       handled,
		handlerErrors: handlerErrors,
		subscriptions: subscriptions,
	}
}

func (m *instruments) eventAttrs(eventType string, async bool) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.Bool("async", async),
	)
}

func (m *instruments) recordPublished(ctx context.Context, eventType string, async bool) {
	m.published.Add(ctx, 1, m.eventAttrs(eventType, async))
}

func (m *instruments) recordHandled(ctx context.Context, eventType string, async bool) {
	m.handled.Add(ctx, 1, m.eventAttrs(eventType, async))
}

func (m *instruments) recordHandlerError(ctx context.Context, eventType string, async bool) {
	m.handlerErrors.Add(ctx, 1, m.eventAttrs(eventType, async))
}

func (m *instruments) recordSubscribed(ctx context.Context, eventType string, async bool) {
	m.subscriptions.Add(ctx, 1, m.eventAttrs(eventType, async))
}

func (m *instruments) recordUnsubscribed(ctx context.Context, eventType string, async bool) {
	m.subscriptions.Add(ctx, -1, m.eventAttrs(eventType, async))
}
