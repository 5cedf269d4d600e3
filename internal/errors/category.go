// Package errors wraps failures with the metadata the sync engine and the
// telemetry layer need: a category for routing and grouping, the component
// that raised it, a severity, and free-form context such as the record id.
//
// Errors are assembled with a builder:
//
//	return errors.New(err).
//	    Component("coordinator").
//	    Category(errors.CategoryRetry).
//	    RecordContext(rec.ID, attempt).
//	    Build()
//
// The resulting *EnhancedError behaves like the error it wraps for
// errors.Is / errors.As and for its message.
package errors

import (
	stderrors "errors"
	"strings"
)

// ErrorCategory groups errors by what went wrong rather than where.
type ErrorCategory string

// CategorizedError is implemented by error types that know their category.
// Build picks it up when no category was set explicitly.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCredential    ErrorCategory = "credential"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryDatabase      ErrorCategory = "database"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryState         ErrorCategory = "state"
	CategoryLimit         ErrorCategory = "limit"
	CategoryGeneric       ErrorCategory = "generic"

	CategoryNetwork      ErrorCategory = "network"
	CategoryHTTP         ErrorCategory = "http-request"
	CategoryTimeout      ErrorCategory = "timeout"
	CategoryRetry        ErrorCategory = "retry"
	CategoryCancellation ErrorCategory = "cancellation"

	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
)

// Transient reports whether errors of this category may go away on their own.
func (c ErrorCategory) Transient() bool {
	switch c {
	case CategoryNetwork, CategoryHTTP, CategoryTimeout, CategoryRetry, CategoryMQTTConnection, CategoryMQTTPublish:
		return true
	}
	return false
}

// Title is the human-readable form used in telemetry issue titles.
func (c ErrorCategory) Title() string {
	switch c {
	case CategoryHTTP:
		return "HTTP Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryRetry:
		return "Retry Exhausted"
	case CategoryMQTTConnection, CategoryMQTTPublish:
		return "MQTT Error"
	case "":
		return ""
	}
	words := strings.Split(string(c), "-")
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ") + " Error"
}

// defaultCategories maps components to the category their uncategorized
// errors fall into.
var defaultCategories = map[string]ErrorCategory{
	"datastore":  CategoryDatabase,
	"conf":       CategoryConfiguration,
	"secrets":    CategoryCredential,
	"syncclient": CategoryNetwork,
	"httpclient": CategoryNetwork,
	"mqtt":       CategoryMQTTPublish,
	"export":     CategoryFileIO,
	"evaluation": CategoryValidation,
}

// classify derives a category from the error chain, then from the component.
func classify(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	var categorized CategorizedError
	if stderrors.As(err, &categorized) && categorized.ErrorCategory() != "" {
		return categorized.ErrorCategory()
	}

	if c, ok := defaultCategories[component]; ok {
		return c
	}
	return CategoryGeneric
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
