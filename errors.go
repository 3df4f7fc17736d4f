package aggregator

import (
	"errors"
	"fmt"
	"reflect"
)

// Aggregator errors
var (
	// ErrShapeMismatch indicates a callable does not accept exactly the
	// declared event type. Returned from the untyped subscribe path at
	// construction time; the registry is left unchanged.
	ErrShapeMismatch = errors.New("handler shape mismatch")

	// ErrNilHandler indicates a nil callable was passed to subscribe.
	ErrNilHandler = errors.New("handler is nil")

	// ErrNilEvent indicates a nil value was published. A nil interface has
	// no runtime type and therefore cannot be matched against a registry.
	ErrNilEvent = errors.New("event is nil")

	// ErrInvalidOwner indicates a non-comparable value was passed to
	// WithOwner. Handler identities are compared with ==, so an owner that
	// cannot be compared would panic during dispatch bookkeeping; it is
	// rejected at subscribe time instead.
	ErrInvalidOwner = errors.New("owner is not comparable")

	// ErrClosed indicates the aggregator was closed with Close.
	ErrClosed = errors.New("aggregator is closed")
)

// InvocationError wraps a failure raised by a subscribed handler during
// Publish or PublishAsync. The cause is available via Unwrap, so callers can
// use errors.Is/errors.As against their own error values.
type InvocationError struct {
	// EventType is the event type the failing handler was registered for.
	EventType reflect.Type
	// SubscriptionID identifies the failing subscription.
	SubscriptionID string
	// Err is the error (or recovered panic) returned by the handler.
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("handler for %v (subscription %s) failed: %v", e.EventType, e.SubscriptionID, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsInvocationError checks if an error originated in a subscribed handler.
func IsInvocationError(err error) bool {
	var invErr *InvocationError
	return errors.As(err, &invErr)
}

// PanicError carries a panic recovered from a handler when recovery is
// enabled. The panic value and stack are preserved for diagnosis.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}
