package aggregator

import (
	"context"
	"fmt"
	"reflect"
)

// Handler is a synchronous event handler. Publish invokes every matching
// handler sequentially on the calling goroutine; a non-nil error aborts the
// remaining handlers in that call.
type Handler[T any] func(ctx context.Context, event T) error

// AsyncHandler is an asynchronous event handler. PublishAsync starts every
// matching handler on its own goroutine and waits for all of them to settle.
type AsyncHandler[T any] func(ctx context.Context, event T) error

// EventType returns the registry key for T. It resolves named, pointer and
// interface types alike, unlike reflect.TypeOf on a zero value.
func EventType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// identity is the comparable key a registry deduplicates and removes by.
// fn is the handler's code pointer; owner disambiguates handlers built at
// the same site for different receivers, which share a code pointer.
type identity struct {
	fn    uintptr
	owner any
}

// identityOf derives the identity key for a handler function value.
// Re-deriving the key from the same function value (and owner) always yields
// an equal identity; unsubscribe depends on this. A method value expression
// evaluates to a fresh func value whose code pointer is not guaranteed to be
// stable across evaluations, so callers must capture the method value once
// and reuse it, or unsubscribe through the *Subscription handle.
func identityOf(fn any, owner any) identity {
	return identity{fn: reflect.ValueOf(fn).Pointer(), owner: owner}
}

// record is the immutable pairing of an event type and a callable held by a
// registry. invoke adapts the typed handler to the untyped dispatch path.
type record struct {
	id        string
	eventType reflect.Type
	key       identity
	invoke    func(ctx context.Context, event any) error
}

// newRecord builds a record from a statically typed handler. The handler
// shape is guaranteed by the compiler, so only nil needs checking.
func newRecord[T any](h func(ctx context.Context, event T) error, owner any) (*record, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	return &record{
		id:        NewID(),
		eventType: EventType[T](),
		key:       identityOf(h, owner),
		invoke: func(ctx context.Context, event any) error {
			return h(ctx, event.(T))
		},
	}, nil
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// newRecordFor builds a record from an untyped callable. fn must be a
// func(context.Context, T) error whose T is exactly eventType; assignability
// is not enough, dispatch matches on type equality.
func newRecordFor(eventType reflect.Type, fn any, owner any) (*record, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	if eventType == nil {
		return nil, fmt.Errorf("%w: event type is nil", ErrShapeMismatch)
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func ||
		t.NumIn() != 2 || t.NumOut() != 1 ||
		t.In(0) != ctxType || t.Out(0) != errorType {
		return nil, fmt.Errorf("%w: got %T, want func(context.Context, %v) error",
			ErrShapeMismatch, fn, eventType)
	}
	if t.In(1) != eventType {
		return nil, fmt.Errorf("%w: handler accepts %v, event type is %v",
			ErrShapeMismatch, t.In(1), eventType)
	}
	return &record{
		id:        NewID(),
		eventType: eventType,
		key:       identityOf(fn, owner),
		invoke: func(ctx context.Context, event any) error {
			out := v.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(event)})
			if err, ok := out[0].Interface().(error); ok && err != nil {
				return err
			}
			return nil
		},
	}, nil
}
