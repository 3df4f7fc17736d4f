// Package autowire subscribes and unsubscribes all handler bindings a host
// object declares, in one call, through the aggregator's public contract.
//
// A host implements Binder and lists its handlers explicitly, instead of the
// aggregator scanning the object for handler methods at runtime:
//
//	type OrderProjector struct{ store *Store }
//
//	func (p *OrderProjector) Bindings() []autowire.Binding {
//	    return []autowire.Binding{
//	        autowire.Sync("OnOrderPlaced", p.OnOrderPlaced),
//	        autowire.Async("OnOrderShipped", p.OnOrderShipped),
//	    }
//	}
//
//	autowire.Subscribe(agg, projector)
//	defer autowire.Unsubscribe(agg, projector)
//
// Bindings built with Sync and Async are shape-checked by the compiler. The
// Func and AsyncFunc constructors accept an untyped handler for hosts that
// assemble bindings at runtime; an invalid shape surfaces as an
// *UnsupportedSignatureError naming the binding, and Subscribe refuses to
// wire anything if any binding of the target is invalid.
//
// Unsubscribe re-derives the same bindings from the same target, so a
// Subscribe/Unsubscribe pair always restores the aggregator to having zero
// handlers contributed by that target. Both calls use the target as the
// handler identity owner, which keeps bindings of two different instances of
// the same type distinct. Binder implementations should use pointer
// receivers: the target is compared by identity and must be comparable.
package autowire

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rbaliyan/aggregator"
)

// Autowire errors
var (
	// ErrUnsupportedSignature indicates a binding whose handler does not
	// have a supported shape. Match with errors.Is; the concrete
	// *UnsupportedSignatureError names the binding.
	ErrUnsupportedSignature = errors.New("unsupported handler signature")

	// ErrNilTarget indicates Subscribe or Unsubscribe was called with a nil
	// target.
	ErrNilTarget = errors.New("target is nil")
)

// UnsupportedSignatureError reports a binding that cannot be wired, with the
// binding name for diagnosis.
type UnsupportedSignatureError struct {
	Method string
	Reason string
}

func (e *UnsupportedSignatureError) Error() string {
	return fmt.Sprintf("binding %q: %s", e.Method, e.Reason)
}

func (e *UnsupportedSignatureError) Is(target error) bool {
	return target == ErrUnsupportedSignature
}

// Binder is the capability a host object implements to take part in bulk
// wiring. Bindings must be derivable repeatedly: every call should return
// bindings for the same methods of the same receiver, or Unsubscribe cannot
// find the subscriptions Subscribe created.
type Binder interface {
	Bindings() []Binding
}

// Binding pairs one event type with one handler of the declaring host.
// Construct with Sync, Async, Func or AsyncFunc.
type Binding struct {
	name      string
	async     bool
	eventType reflect.Type
	fn        any
	err       error
}

// Name returns the binding name used in diagnostics.
func (b Binding) Name() string {
	return b.name
}

// Async reports whether the binding targets the async registry.
func (b Binding) Async() bool {
	return b.async
}

// EventType returns the event type the binding accepts, or nil for an
// invalid binding.
func (b Binding) EventType() reflect.Type {
	return b.eventType
}

// Err returns the construction error of an invalid binding, or nil.
func (b Binding) Err() error {
	return b.err
}

// Sync builds a binding for a synchronous handler.
func Sync[T any](name string, h aggregator.Handler[T]) Binding {
	if h == nil {
		return Binding{name: name, err: &UnsupportedSignatureError{Method: name, Reason: "nil handler"}}
	}
	return Binding{
		name:      name,
		eventType: aggregator.EventType[T](),
		fn:        (func(context.Context, T) error)(h),
	}
}

// Async builds a binding for an asynchronous handler.
func Async[T any](name string, h aggregator.AsyncHandler[T]) Binding {
	if h == nil {
		return Binding{name: name, async: true, err: &UnsupportedSignatureError{Method: name, Reason: "nil handler"}}
	}
	return Binding{
		name:      name,
		async:     true,
		eventType: aggregator.EventType[T](),
		fn:        (func(context.Context, T) error)(h),
	}
}

// Func builds a sync binding from an untyped handler. fn must be a
// func(context.Context, T) error; the event type is taken from the second
// parameter.
func Func(name string, fn any) Binding {
	return newFuncBinding(name, false, fn)
}

// AsyncFunc builds an async binding from an untyped handler.
func AsyncFunc(name string, fn any) Binding {
	return newFuncBinding(name, true, fn)
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

func newFuncBinding(name string, async bool, fn any) Binding {
	b := Binding{name: name, async: async}
	if fn == nil {
		b.err = &UnsupportedSignatureError{Method: name, Reason: "nil handler"}
		return b
	}
	t := reflect.TypeOf(fn)
	switch {
	case t.Kind() != reflect.Func:
		b.err = &UnsupportedSignatureError{Method: name, Reason: fmt.Sprintf("not a function: %T", fn)}
	case t.NumIn() != 2 || t.In(0) != ctxType:
		b.err = &UnsupportedSignatureError{Method: name,
			Reason: fmt.Sprintf("want exactly one event parameter after context.Context, got %v", t)}
	case t.NumOut() != 1 || t.Out(0) != errorType:
		b.err = &UnsupportedSignatureError{Method: name,
			Reason: fmt.Sprintf("want a single error return, got %v", t)}
	default:
		b.eventType = t.In(1)
		b.fn = fn
	}
	return b
}

// Subscribe wires every binding of target into the aggregator. All bindings
// are validated before any mutation; an invalid one aborts the whole call
// with an error naming it, leaving the target completely unwired. If a late
// binding fails to subscribe (for example the aggregator closed
// concurrently), the bindings already wired in this call are removed again.
func Subscribe(agg *aggregator.Aggregator, target Binder) error {
	bindings, err := derive(target)
	if err != nil {
		return err
	}
	for i, b := range bindings {
		if err := subscribeOne(agg, target, b); err != nil {
			for _, wired := range bindings[:i] {
				unsubscribeOne(agg, target, wired)
			}
			return fmt.Errorf("autowire %q: %w", b.name, err)
		}
	}
	return nil
}

// Unsubscribe removes every binding of target from the aggregator. It is
// idempotent: unwiring a target that was never subscribed, or twice in a
// row, succeeds silently.
func Unsubscribe(agg *aggregator.Aggregator, target Binder) error {
	bindings, err := derive(target)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		unsubscribeOne(agg, target, b)
	}
	return nil
}

// derive enumerates the target's bindings and validates all of them before
// any is acted on.
func derive(target Binder) ([]Binding, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	bindings := target.Bindings()
	for _, b := range bindings {
		if b.err != nil {
			return nil, b.err
		}
	}
	return bindings, nil
}

func subscribeOne(agg *aggregator.Aggregator, target Binder, b Binding) error {
	var err error
	if b.async {
		_, err = agg.SubscribeAsyncFunc(b.eventType, b.fn, aggregator.WithOwner(target))
	} else {
		_, err = agg.SubscribeFunc(b.eventType, b.fn, aggregator.WithOwner(target))
	}
	return err
}

func unsubscribeOne(agg *aggregator.Aggregator, target Binder, b Binding) {
	if b.async {
		agg.UnsubscribeAsyncFunc(b.eventType, b.fn, aggregator.WithOwner(target))
	} else {
		agg.UnsubscribeFunc(b.eventType, b.fn, aggregator.WithOwner(target))
	}
}
