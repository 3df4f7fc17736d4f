package aggregator

import (
	"fmt"
	"log/slog"
	"reflect"
)

// config holds aggregator configuration (unexported)
type config struct {
	logger          *slog.Logger
	tracingEnabled  bool
	recoveryEnabled bool
	metricsEnabled  bool
}

// Option option function for aggregator configuration
type Option func(*config)

// WithLogger sets a custom logger for the aggregator
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracing enables/disables OpenTelemetry tracing for publish calls
func WithTracing(enabled bool) Option {
	return func(c *config) {
		c.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables OpenTelemetry metrics
func WithMetrics(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = enabled
	}
}

// WithRecovery enables/disables panic recovery in handlers. When enabled,
// a panicking handler surfaces as an *InvocationError wrapping a *PanicError
// instead of unwinding through the publisher.
func WithRecovery(enabled bool) Option {
	return func(c *config) {
		c.recoveryEnabled = enabled
	}
}

// newConfig creates a config with defaults and applies provided options
func newConfig(opts ...Option) *config {
	c := &config{
		logger:          slog.Default(),
		tracingEnabled:  true,
		recoveryEnabled: true,
		metricsEnabled:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// subscribeConfig holds per-subscription configuration (unexported)
type subscribeConfig struct {
	owner any
}

// SubscribeOption option function for subscribe/unsubscribe calls
type SubscribeOption func(*subscribeConfig)

// WithOwner attaches an owner to the handler identity. Handlers built at the
// same site may share a code pointer across receivers; passing the receiver
// as owner keeps subscriptions of different instances distinct. The owner
// must be comparable (a pointer is ideal) and the same owner must be passed
// to the matching Unsubscribe call. Subscribing with a non-comparable owner
// fails with ErrInvalidOwner.
//
// The owner does not make an unstable handler identity stable: a method
// value expression such as h.OnEvent must still be captured once and the
// same func value passed to Subscribe and Unsubscribe.
func WithOwner(owner any) SubscribeOption {
	return func(c *subscribeConfig) {
		c.owner = owner
	}
}

func newSubscribeConfig(opts ...SubscribeOption) (*subscribeConfig, error) {
	c := &subscribeConfig{}
	for _, opt := range opts {
		opt(c)
	}
	if c.owner != nil && !reflect.TypeOf(c.owner).Comparable() {
		return nil, fmt.Errorf("%w: %T", ErrInvalidOwner, c.owner)
	}
	return c, nil
}
