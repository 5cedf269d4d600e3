package errors

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error produced by Build while installed.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu      sync.RWMutex
	currentReporter TelemetryReporter
	reportingActive atomic.Bool
)

// SetTelemetryReporter installs the reporter. nil or a disabled reporter
// turns reporting off.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	currentReporter = r
	reportingActive.Store(r != nil && r.IsEnabled())
}

// GetTelemetryReporter returns the installed reporter, or nil.
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return currentReporter
}

func report(ee *EnhancedError) {
	if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

// SentryReporter forwards enhanced errors to the global Sentry hub.
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool { return sr.enabled }

// ReportError captures ee once. Messages and string context values are
// scrubbed before they leave the process.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || !ee.MarkReported() {
		return
	}

	title := issueTitle(ee)
	message := ScrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	level := sentryLevel(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(map[string]string{
			"component":  ee.GetComponent(),
			"category":   string(ee.Category),
			"error_type": fmt.Sprintf("%T", ee.Err),
		})
		if ee.Severity != SeverityDefault {
			scope.SetTag("severity", ee.Severity.String())
		}

		record := make(map[string]any, len(ee.Context))
		for k, v := range ee.Context {
			if s, ok := v.(string); ok {
				v = ScrubMessage(s)
			}
			record[k] = v
		}
		if len(record) > 0 {
			scope.SetContext("evalsync", record)
		}

		scope.SetLevel(level)
		scope.SetFingerprint([]string{ee.GetComponent(), string(ee.Category), ee.Operation()})

		event := sentry.NewEvent()
		event.Level = level
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})
}

// issueTitle reads like "Datastore Database Error: Update".
func issueTitle(ee *EnhancedError) string {
	title := ee.Category.Title()
	if c := ee.GetComponent(); c != ComponentUnknown {
		title = strings.TrimSpace(capitalize(c) + " " + title)
	}
	if op := ee.Operation(); op != "" {
		title += ": " + capitalize(strings.ReplaceAll(op, "_", " "))
	}
	if title == "" {
		return fmt.Sprintf("%T", ee.Err)
	}
	return title
}

func sentryLevel(ee *EnhancedError) sentry.Level {
	switch ee.Severity {
	case SeverityLow:
		return sentry.LevelInfo
	case SeverityMedium:
		return sentry.LevelWarning
	case SeverityHigh:
		return sentry.LevelError
	case SeverityCritical:
		return sentry.LevelFatal
	}
	switch {
	case ee.Category == CategoryCancellation, ee.Category == CategoryNotFound:
		return sentry.LevelInfo
	case ee.Category.Transient():
		return sentry.LevelWarning
	}
	return sentry.LevelError
}
