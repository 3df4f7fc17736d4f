// Package aggregator provides an in-process, typed publish/subscribe event
// aggregator. Components publish event values to an Aggregator and every
// handler registered for that event's exact type is invoked with it, without
// the components holding references to each other.
//
// The aggregator keeps two independent registries: one for synchronous
// handlers (invoked sequentially on the publisher's goroutine) and one for
// asynchronous handlers (started concurrently and awaited together).
//
// Basic example with type safety:
//
//	type UserCreated struct {
//	    ID   string
//	    Name string
//	}
//
//	agg := aggregator.New("my-app")
//	defer agg.Close()
//
//	// Subscribe with a type-safe handler
//	sub, err := aggregator.Subscribe(agg, func(ctx context.Context, ev UserCreated) error {
//	    fmt.Printf("user created: %s\n", ev.Name)
//	    return nil
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Publish: every sync handler registered for UserCreated runs, in
//	// subscription order, on the calling goroutine.
//	if err := agg.Publish(ctx, UserCreated{ID: "123", Name: "John"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Remove the subscription via its handle.
//	agg.Remove(sub)
//
// Asynchronous handlers are registered through SubscribeAsync and dispatched
// through PublishAsync, which starts all matching handlers concurrently and
// returns once every one of them has settled:
//
//	aggregator.SubscribeAsync(agg, func(ctx context.Context, ev UserCreated) error {
//	    return sendWelcomeEmail(ctx, ev)
//	})
//	err := agg.PublishAsync(ctx, UserCreated{ID: "123"})
//
// Dispatch matches on the exact runtime type of the published value. A
// handler registered for UserCreated never sees *UserCreated, and a handler
// registered for an interface type never matches at all, since published
// values always carry a concrete type.
//
// Handler identity:
// Go functions are not comparable, so a subscription's identity is the
// handler's code pointer plus an optional owner supplied with WithOwner.
// Subscribing the same function value twice for the same event type is a
// silent no-op; Unsubscribe with the same function value removes it. A
// method value expression evaluates to a fresh func value each time and its
// code pointer is not guaranteed to be stable across evaluations, so capture
// it once and pass the same value to Subscribe and Unsubscribe, with the
// receiver as owner when two instances must be told apart:
//
//	onCreated := h.OnUserCreated
//	aggregator.Subscribe(agg, onCreated, aggregator.WithOwner(h))
//	// ...
//	aggregator.Unsubscribe(agg, onCreated, aggregator.WithOwner(h))
//
// Keeping the *Subscription handle and calling Aggregator.Remove sidesteps
// function identity entirely.
//
// The autowire subpackage builds on this to wire and unwire all handler
// bindings a host object declares in one call.
//
// Aggregator options:
//   - WithLogger: set a *slog.Logger for the aggregator.
//   - WithTracing: enable/disable OpenTelemetry tracing. Default is true.
//   - WithMetrics: enable/disable OpenTelemetry metrics. Default is true.
//   - WithRecovery: convert handler panics into errors. Default is true.
//
// Error handling:
// A failing sync handler aborts the remaining handlers in that Publish call
// and the error propagates to the caller wrapped in *InvocationError. A
// failing async handler never aborts its siblings; PublishAsync waits for
// all started invocations and then reports the first failure. Nothing is
// retried and nothing is swallowed.
//
// Every Aggregator instance is fully isolated: there is no package-level
// registry, and an application may construct as many aggregators as needed.
package aggregator
