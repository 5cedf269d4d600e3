package coordinator

import (
	"time"

	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
)

const (
	// DefaultMaxAttempts is used when a caller passes maxAttempts < 1.
	DefaultMaxAttempts = 5
	// DefaultInitialBackoff is the wait after the first failed attempt.
	DefaultInitialBackoff = time.Second
	// DefaultConcurrency bounds PushPending.
	DefaultConcurrency = 4
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTarget sets the initial push target.
func WithTarget(target evaluation.RegistryConfig) Option {
	return func(c *Coordinator) { c.target = target }
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithBackoff replaces the backoff policy.
func WithBackoff(policy BackoffPolicy) Option {
	return func(c *Coordinator) { c.backoff = policy }
}

// WithMaxAttempts sets the default attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithConcurrency bounds how many records PushPending pushes at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithNotifier registers a status notifier.
func WithNotifier(n StatusNotifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithMetrics registers a sync metrics recorder.
func WithMetrics(m SyncRecorder) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithSerializedPushes collapses concurrent pushes of the same record id
// into one in-flight invocation.
func WithSerializedPushes() Option {
	return func(c *Coordinator) { c.serialize = true }
}
