package errors

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"
)

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	severity  Severity
	context   map[string]any
}

// New starts building an enhanced error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a format string. %w is honored.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the component raising the error. When omitted, it is taken
// from the calling package.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. When omitted, it is derived from the wrapped
// error or the component.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Severity overrides the telemetry level the category would imply.
func (eb *ErrorBuilder) Severity(severity Severity) *ErrorBuilder {
	eb.severity = severity
	return eb
}

// Context attaches a key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
	return eb
}

// RecordContext tags the error with the evaluation record and attempt number.
// Empty id and zero attempt are omitted.
func (eb *ErrorBuilder) RecordContext(recordID string, attempt int) *ErrorBuilder {
	if recordID != "" {
		eb.Context("record_id", recordID)
	}
	if attempt > 0 {
		eb.Context("attempt", attempt)
	}
	return eb
}

// NetworkContext records the kind of endpoint involved and the timeout in
// effect. The URL itself is never stored.
func (eb *ErrorBuilder) NetworkContext(rawURL string, timeout time.Duration) *ErrorBuilder {
	if rawURL != "" {
		eb.Context("endpoint_kind", endpointKind(rawURL))
	}
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Build finalizes the error and hands it to the telemetry reporter, if one
// is active.
func (eb *ErrorBuilder) Build() *EnhancedError {
	component := eb.component
	if component == "" {
		component = callerComponent()
	}
	category := eb.category
	if category == "" {
		category = classify(eb.err, component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Severity:  eb.severity,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}

	if reportingActive.Load() {
		report(ee)
	}
	return ee
}

const (
	modulePrefix = "github.com/tphakala/evalsync/internal/"
	selfPackage  = modulePrefix + "errors."
)

// callerComponent returns the first internal package on the stack outside
// this one, e.g. "datastore" for internal/datastore/sqlstore.
func callerComponent() string {
	var pcs [12]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fn := frame.Function
		if strings.HasPrefix(fn, modulePrefix) && !strings.HasPrefix(fn, selfPackage) {
			rest := fn[len(modulePrefix):]
			if i := strings.IndexAny(rest, "/."); i > 0 {
				return rest[:i]
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func endpointKind(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "unparsable"
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if host := u.Hostname(); host == "localhost" || strings.HasPrefix(host, "127.") {
			return "loopback-" + strings.ToLower(u.Scheme)
		}
		return strings.ToLower(u.Scheme) + "-endpoint"
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
		return "mqtt-broker"
	}
	return "other"
}
