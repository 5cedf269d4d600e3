package datastore

import (
	"github.com/tphakala/evalsync/internal/errors"
)

const component = "datastore"

// dbError creates a categorized database error with context pairs.
func dbError(err error, operation string, context ...any) error {
	return contextError(err, errors.CategoryDatabase, operation, context...)
}

// fileError creates a categorized file I/O error with context pairs.
func fileError(err error, operation string, context ...any) error {
	return contextError(err, errors.CategoryFileIO, operation, context...)
}

// corruptError reports a record collection or row that cannot be decoded.
func corruptError(err error, operation string, context ...any) error {
	b := errors.Newf("stored records are corrupt: %w", err).
		Component(component).
		Category(errors.CategoryDatabase).
		Severity(errors.SeverityHigh).
		Context("operation", operation)
	addPairs(b, context)
	return b.Build()
}

func contextError(err error, category errors.ErrorCategory, operation string, context ...any) error {
	if errors.As(err, new(*errors.EnhancedError)) {
		return err
	}
	b := errors.New(err).
		Component(component).
		Category(category).
		Context("operation", operation)
	addPairs(b, context)
	return b.Build()
}

func addPairs(b *errors.ErrorBuilder, context []any) {
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			b.Context(key, context[i+1])
		}
	}
}

// closedError is returned by operations on a closed backend.
func closedError(operation string) error {
	return errors.Newf("record store is closed").
		Component(component).
		Category(errors.CategoryState).
		Context("operation", operation).
		Build()
}
