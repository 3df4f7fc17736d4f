package aggregator

import (
	"context"
)

const (
	dispatchContextKey contextKey = iota
)

// contextKey
type contextKey int

// dispatchContextData is attached to the context every handler receives.
type dispatchContextData struct {
	eventID string
	source  string
	subID   string
}

// ContextEventID returns the ID assigned to the publish call that delivered
// the current event, or "" outside a dispatch.
func ContextEventID(ctx context.Context) string {
	if d, ok := ctx.Value(dispatchContextKey).(*dispatchContextData); ok {
		return d.eventID
	}
	return ""
}

// ContextSource returns the instance ID of the aggregator that delivered the
// current event, or "" outside a dispatch.
func ContextSource(ctx context.Context) string {
	if d, ok := ctx.Value(dispatchContextKey).(*dispatchContextData); ok {
		return d.source
	}
	return ""
}

// ContextSubscriptionID returns the ID of the subscription whose handler is
// currently running, or "" outside a dispatch.
func ContextSubscriptionID(ctx context.Context) string {
	if d, ok := ctx.Value(dispatchContextKey).(*dispatchContextData); ok {
		return d.subID
	}
	return ""
}

func contextWithDispatch(ctx context.Context, eventID, source, subID string) context.Context {
	return context.WithValue(ctx, dispatchContextKey, &dispatchContextData{
		eventID: eventID,
		source:  source,
		subID:   subID,
	})
}
