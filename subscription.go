package aggregator

import (
	"fmt"
	"reflect"
)

// Subscription is the handle returned by subscribe operations. It identifies
// one (event type, handler identity) pairing in one registry and can be
// passed to Aggregator.Remove, sidestepping function-equality ambiguity
// entirely.
type Subscription struct {
	id        string
	eventType reflect.Type
	key       identity
	async     bool
}

// ID returns the unique subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// EventType returns the event type the subscription is registered for.
func (s *Subscription) EventType() reflect.Type {
	return s.eventType
}

// Async reports whether the subscription lives in the async registry.
func (s *Subscription) Async() bool {
	return s.async
}

func (s *Subscription) String() string {
	kind := "sync"
	if s.async {
		kind = "async"
	}
	return fmt.Sprintf("Subscription{%s %v %s}", kind, s.eventType, s.id)
}
