package aggregator

import (
	"context"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	aggRunning = 1
	aggStopped = 0
)

const (
	spanKeyEventID    = "event.id"
	spanKeyEventType  = "event.type"
	spanKeySource     = "event.source"
	spanKeyAggregator = "event.aggregator"
)

// DefaultName is used when New is called with an empty name.
var DefaultName = "aggregator"

// Aggregator is a typed in-process publish/subscribe hub. It owns two
// independent handler registries, one synchronous and one asynchronous, and
// is their sole mutator. The zero value is not usable; construct with New.
type Aggregator struct {
	status          int32
	id              string
	name            string
	logger          *slog.Logger
	tracingEnabled  bool
	recoveryEnabled bool
	metricsEnabled  bool
	metrics         *instruments
	syncHandlers    handlerRegistry
	asyncHandlers   handlerRegistry
}

// New creates an aggregator with empty registries. Aggregator instances are
// fully isolated from each other; there is no global registry.
func New(name string, opts ...Option) *Aggregator {
	c := newConfig(opts...)
	if name == "" {
		name = DefaultName
	}
	var metrics *instruments
	if c.metricsEnabled {
		metrics = newInstruments(name)
	}
	return &Aggregator{
		status:          aggRunning,
		id:              NewID(),
		name:            name,
		logger:          c.logger.With("component", "aggregator>"+name),
		tracingEnabled:  c.tracingEnabled,
		recoveryEnabled: c.recoveryEnabled,
		metricsEnabled:  c.metricsEnabled,
		metrics:         metrics,
	}
}

// ID returns the aggregator instance ID. Handlers see it as ContextSource.
func (a *Aggregator) ID() string {
	return a.id
}

// Name returns the aggregator name.
func (a *Aggregator) Name() string {
	return a.name
}

// Running returns true until Close is called.
func (a *Aggregator) Running() bool {
	return atomic.LoadInt32(&a.status) == aggRunning
}

// Close marks the aggregator stopped. Subsequent subscribes and publishes
// return ErrClosed; unsubscribes still succeed. Close is idempotent.
func (a *Aggregator) Close() error {
	if atomic.CompareAndSwapInt32(&a.status, aggRunning, aggStopped) {
		a.logger.Debug("aggregator closed")
	}
	return nil
}

// Subscriptions returns the current number of sync and async subscriptions.
func (a *Aggregator) Subscriptions() (numSync, numAsync int) {
	return a.syncHandlers.size(), a.asyncHandlers.size()
}

// Publish delivers event to every sync handler registered for its exact
// runtime type, sequentially in subscription order on the calling goroutine.
// The first handler error aborts the remaining invocations and is returned
// wrapped in *InvocationError. Handlers run outside the registry lock, so
// they may subscribe, unsubscribe or publish reentrantly; such mutations
// affect later publishes, never the snapshot already being dispatched.
func (a *Aggregator) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	if !a.Running() {
		return ErrClosed
	}
	eventType := reflect.TypeOf(event)
	typeName := eventType.String()
	eventID := NewID()

	if a.metricsEnabled {
		a.metrics.recordPublished(ctx, typeName, false)
	}
	if a.tracingEnabled {
		var span trace.Span
		ctx, span = otel.Tracer(a.name).Start(ctx, typeName+".publish",
			trace.WithAttributes(
				attribute.String(spanKeyEventID, eventID),
				attribute.String(spanKeyEventType, typeName),
				attribute.String(spanKeySource, a.id),
				attribute.String(spanKeyAggregator, a.name)),
			trace.WithSpanKind(trace.SpanKindProducer))
		defer span.End()
	}

	for _, rec := range a.syncHandlers.snapshotFor(eventType) {
		hctx := contextWithDispatch(ctx, eventID, a.id, rec.id)
		if err := a.invoke(hctx, rec, event); err != nil {
			if a.metricsEnabled {
				a.metrics.recordHandlerError(ctx, typeName, false)
			}
			return err
		}
		if a.metricsEnabled {
			a.metrics.recordHandled(ctx, typeName, false)
		}
	}
	return nil
}

// PublishAsync delivers event to every async handler registered for its
// exact runtime type. All matched handlers start concurrently and
// PublishAsync returns only after every started invocation has settled; a
// failing handler never causes its siblings to be abandoned. If any
// invocation failed, the first failure is returned after the wait. With no
// matching handlers PublishAsync returns nil immediately.
func (a *Aggregator) PublishAsync(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	if !a.Running() {
		return ErrClosed
	}
	eventType := reflect.TypeOf(event)
	typeName := eventType.String()
	eventID := NewID()

	if a.metricsEnabled {
		a.metrics.recordPublished(ctx, typeName, true)
	}

	recs := a.asyncHandlers.snapshotFor(eventType)
	if len(recs) == 0 {
		return nil
	}

	if a.tracingEnabled {
		var span trace.Span
		ctx, span = otel.Tracer(a.name).Start(ctx, typeName+".publish_async",
			trace.WithAttributes(
				attribute.String(spanKeyEventID, eventID),
				attribute.String(spanKeyEventType, typeName),
				attribute.String(spanKeySource, a.id),
				attribute.String(spanKeyAggregator, a.name)),
			trace.WithSpanKind(trace.SpanKindProducer))
		defer span.End()
	}

	g := new(errgroup.Group)
	for _, rec := range recs {
		rec := rec
		hctx := contextWithDispatch(ctx, eventID, a.id, rec.id)
		g.Go(func() error {
			err := a.invoke(hctx, rec, event)
			if a.metricsEnabled {
				if err != nil {
					a.metrics.recordHandlerError(ctx, typeName, true)
				} else {
					a.metrics.recordHandled(ctx, typeName, true)
				}
			}
			return err
		})
	}
	return g.Wait()
}

// invoke runs one handler, wrapping failures in *InvocationError. With
// recovery enabled a panic surfaces the same way, as a *PanicError cause.
func (a *Aggregator) invoke(ctx context.Context, rec *record, event any) (err error) {
	if a.recoveryEnabled {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("handler panic recovered",
					"event_type", rec.eventType.String(),
					"subscription", rec.id,
					"panic", r)
				err = &InvocationError{
					EventType:      rec.eventType,
					SubscriptionID: rec.id,
					Err:            &PanicError{Value: r, Stack: debug.Stack()},
				}
			}
		}()
	}
	if herr := rec.invoke(ctx, event); herr != nil {
		return &InvocationError{
			EventType:      rec.eventType,
			SubscriptionID: rec.id,
			Err:            herr,
		}
	}
	return nil
}

// subscribe adds rec to reg unless an equal identity is already registered.
// Duplicate subscribes are silent no-ops; the returned handle then refers to
// the existing subscription.
func (a *Aggregator) subscribe(reg *handlerRegistry, rec *record, async bool) *Subscription {
	stored, added := reg.add(rec)
	if added {
		if a.metricsEnabled {
			a.metrics.recordSubscribed(context.Background(), stored.eventType.String(), async)
		}
		a.logger.Debug("subscribed handler",
			"event_type", stored.eventType.String(),
			"subscription", stored.id,
			"async", async)
	}
	return &Subscription{
		id:        stored.id,
		eventType: stored.eventType,
		key:       stored.key,
		async:     async,
	}
}

// unsubscribe removes the record with the given identity, if present.
// Removing an absent handler is a no-op.
func (a *Aggregator) unsubscribe(reg *handlerRegistry, eventType reflect.Type, key identity, async bool) bool {
	if !reg.remove(eventType, key) {
		return false
	}
	if a.metricsEnabled {
		a.metrics.recordUnsubscribed(context.Background(), eventType.String(), async)
	}
	a.logger.Debug("unsubscribed handler",
		"event_type", eventType.String(),
		"async", async)
	return true
}

// Remove unsubscribes by handle. Returns false if the subscription was
// already removed.
func (a *Aggregator) Remove(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	if sub.async {
		return a.unsubscribe(&a.asyncHandlers, sub.eventType, sub.key, true)
	}
	return a.unsubscribe(&a.syncHandlers, sub.eventType, sub.key, false)
}

// Active reports whether the subscription behind the handle is still
// registered.
func (a *Aggregator) Active(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	if sub.async {
		return a.asyncHandlers.contains(sub.eventType, sub.key)
	}
	return a.syncHandlers.contains(sub.eventType, sub.key)
}

// SubscribeFunc is the untyped counterpart of Subscribe for callers that
// resolve event types at runtime. fn must be a func(context.Context, T) error
// whose T is exactly eventType, otherwise ErrShapeMismatch is returned and
// the registry is left unchanged.
func (a *Aggregator) SubscribeFunc(eventType reflect.Type, fn any, opts ...SubscribeOption) (*Subscription, error) {
	if !a.Running() {
		return nil, ErrClosed
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return nil, err
	}
	rec, err := newRecordFor(eventType, fn, c.owner)
	if err != nil {
		return nil, err
	}
	return a.subscribe(&a.syncHandlers, rec, false), nil
}

// SubscribeAsyncFunc is the untyped counterpart of SubscribeAsync.
func (a *Aggregator) SubscribeAsyncFunc(eventType reflect.Type, fn any, opts ...SubscribeOption) (*Subscription, error) {
	if !a.Running() {
		return nil, ErrClosed
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return nil, err
	}
	rec, err := newRecordFor(eventType, fn, c.owner)
	if err != nil {
		return nil, err
	}
	return a.subscribe(&a.asyncHandlers, rec, true), nil
}

// UnsubscribeFunc removes the sync subscription registered for eventType
// with the same fn (and owner) passed to SubscribeFunc. Returns false if no
// such subscription exists.
func (a *Aggregator) UnsubscribeFunc(eventType reflect.Type, fn any, opts ...SubscribeOption) bool {
	if fn == nil || eventType == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return false
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return false
	}
	return a.unsubscribe(&a.syncHandlers, eventType, identityOf(fn, c.owner), false)
}

// UnsubscribeAsyncFunc removes the async subscription registered for
// eventType with the same fn (and owner) passed to SubscribeAsyncFunc.
func (a *Aggregator) UnsubscribeAsyncFunc(eventType reflect.Type, fn any, opts ...SubscribeOption) bool {
	if fn == nil || eventType == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return false
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return false
	}
	return a.unsubscribe(&a.asyncHandlers, eventType, identityOf(fn, c.owner), true)
}

// Subscribe registers h as a sync handler for events of type T. Subscribing
// the same handler identity twice is a silent no-op and returns a handle to
// the existing subscription.
func Subscribe[T any](a *Aggregator, h Handler[T], opts ...SubscribeOption) (*Subscription, error) {
	if !a.Running() {
		return nil, ErrClosed
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord[T](h, c.owner)
	if err != nil {
		return nil, err
	}
	return a.subscribe(&a.syncHandlers, rec, false), nil
}

// SubscribeAsync registers h as an async handler for events of type T.
func SubscribeAsync[T any](a *Aggregator, h AsyncHandler[T], opts ...SubscribeOption) (*Subscription, error) {
	if !a.Running() {
		return nil, ErrClosed
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord[T](h, c.owner)
	if err != nil {
		return nil, err
	}
	return a.subscribe(&a.asyncHandlers, rec, true), nil
}

// Unsubscribe removes the sync subscription whose identity matches h (and
// the owner, when WithOwner was used at subscribe time). Returns false if no
// such subscription exists; that is not an error.
func Unsubscribe[T any](a *Aggregator, h Handler[T], opts ...SubscribeOption) bool {
	if h == nil {
		return false
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return false
	}
	return a.unsubscribe(&a.syncHandlers, EventType[T](), identityOf(h, c.owner), false)
}

// UnsubscribeAsync removes the async subscription whose identity matches h.
func UnsubscribeAsync[T any](a *Aggregator, h AsyncHandler[T], opts ...SubscribeOption) bool {
	if h == nil {
		return false
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return false
	}
	return a.unsubscribe(&a.asyncHandlers, EventType[T](), identityOf(h, c.owner), true)
}

// IsSubscribed reports whether h is registered as a sync handler for T.
func IsSubscribed[T any](a *Aggregator, h Handler[T], opts ...SubscribeOption) bool {
	if h == nil {
		return false
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return false
	}
	return a.syncHandlers.contains(EventType[T](), identityOf(h, c.owner))
}

// IsSubscribedAsync reports whether h is registered as an async handler for T.
func IsSubscribedAsync[T any](a *Aggregator, h AsyncHandler[T], opts ...SubscribeOption) bool {
	if h == nil {
		return false
	}
	c, err := newSubscribeConfig(opts...)
	if err != nil {
		return false
	}
	return a.asyncHandlers.contains(EventType[T](), identityOf(h, c.owner))
}
