package errors

import (
	"maps"
	"sync"
	"time"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// Severity ranks errors for telemetry. The zero value lets the category decide.
type Severity int

const (
	SeverityDefault Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "default"
}

// EnhancedError is an error annotated with category, component and context.
// Fields are set once by Build; only the reported flag changes afterwards.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Severity  Severity
	Context   map[string]any
	Timestamp time.Time

	component string

	mu       sync.Mutex
	reported bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, anything else through the
// wrapped chain.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return Is(ee.Err, target)
}

// ErrorCategory implements CategorizedError so wrapping an EnhancedError
// keeps its category.
func (ee *EnhancedError) ErrorCategory() ErrorCategory { return ee.Category }

// GetComponent returns the component that raised the error.
func (ee *EnhancedError) GetComponent() string {
	if ee.component == "" {
		return ComponentUnknown
	}
	return ee.component
}

// GetContext returns a copy of the context map, or nil.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// Operation returns the "operation" context value if one was recorded.
func (ee *EnhancedError) Operation() string {
	op, _ := ee.Context["operation"].(string)
	return op
}

// MarkReported flags the error as sent to telemetry. It returns false if it
// already was.
func (ee *EnhancedError) MarkReported() bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	if ee.reported {
		return false
	}
	ee.reported = true
	return true
}

// IsReported returns whether the error has been sent to telemetry.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	return ee.reported
}
