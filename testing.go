package aggregator

import (
	"context"
	"sync"
	"time"
)

// TestAggregator creates an aggregator configured for testing, with
// recovery, tracing and metrics disabled for simpler failure signatures.
func TestAggregator(name string) *Aggregator {
	return New(name,
		WithRecovery(false),
		WithTracing(false),
		WithMetrics(false),
	)
}

// Recorder records every event of type T a handler receives. Useful for
// asserting fan-out behavior in tests.
//
// Example:
//
//	rec := aggregator.NewRecorder[Ping]()
//	aggregator.Subscribe(agg, rec.Handler())
//	agg.Publish(ctx, Ping{ID: 7})
//	got := rec.Events() // []Ping{{ID: 7}}
type Recorder[T any] struct {
	mu      sync.Mutex
	handler Handler[T]
	events  []T
	err     error
}

// NewRecorder creates a recorder for events of type T. The handler func is
// built once here; evaluating a method value expression anew on every
// Handler call would yield func values with unstable code pointers, and a
// later Unsubscribe could not find the subscription.
func NewRecorder[T any]() *Recorder[T] {
	r := &Recorder[T]{}
	r.handler = r.record
	return r
}

// Handler returns a sync handler that records each event it receives and
// returns the error configured with FailWith, if any. Every call returns the
// same func value, so the handler's identity survives re-derivation.
func (r *Recorder[T]) Handler() Handler[T] {
	return r.handler
}

// AsyncHandler returns an async handler backed by the same recorder.
func (r *Recorder[T]) AsyncHandler() AsyncHandler[T] {
	return AsyncHandler[T](r.handler)
}

func (r *Recorder[T]) record(ctx context.Context, event T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

// FailWith makes every subsequent invocation return err.
func (r *Recorder[T]) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Events returns a copy of all recorded events in arrival order.
func (r *Recorder[T]) Events() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]T, len(r.events))
	copy(result, r.events)
	return result
}

// Count returns the number of recorded events.
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset clears all recorded events.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Wait blocks until at least n events have been recorded or the timeout
// elapses. Returns true if the count was reached.
func (r *Recorder[T]) Wait(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Count() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
