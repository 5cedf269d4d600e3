// Package telemetry wires opt-in Sentry error reporting. Errors built with
// the errors package are forwarded once a reporter is installed; events are
// stripped of host and user data before they leave the process.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
)

// Categories that describe caller mistakes or normal control flow. They are
// never worth an event.
var droppedCategories = map[string]bool{
	string(errors.CategoryValidation):   true,
	string(errors.CategoryNotFound):     true,
	string(errors.CategoryCancellation): true,
	string(errors.CategoryConflict):     true,
}

// DefaultFlushTimeout bounds how long shutdown waits for queued events.
const DefaultFlushTimeout = 2 * time.Second

// Option adjusts the Sentry client options.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the Sentry transport, used by tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// InitSentry initializes Sentry when telemetry is enabled and installs the
// error reporter. It is a no-op when disabled.
func InitSentry(settings *conf.TelemetrySettings, version string, opts ...Option) error {
	log := logger.Global().Module("telemetry")
	if !settings.Enabled {
		log.Debug("Sentry telemetry is disabled (opt-in required)")
		errors.SetTelemetryReporter(nil)
		return nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("evalsync@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("Sentry telemetry enabled", logger.String("release", options.Release))
	return nil
}

// Flush waits up to timeout for queued events to be delivered.
func Flush(timeout time.Duration) bool {
	if errors.GetTelemetryReporter() == nil {
		return true
	}
	return sentry.Flush(timeout)
}

// applyPrivacyFilters drops uninteresting events and clears identifying data
// from the rest.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	if event.Tags != nil && droppedCategories[event.Tags["category"]] {
		return nil
	}

	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil
	event.Message = errors.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
