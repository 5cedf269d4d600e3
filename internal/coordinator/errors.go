package coordinator

import (
	"fmt"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/syncclient"
)

const component = "coordinator"

// ErrNotConfigured is wrapped by the error returned when the target is
// disabled or has no endpoint.
var ErrNotConfigured = syncclient.ErrNotConfigured

// ErrLocalRecord is wrapped when a push is requested by id for a record the
// operator kept local.
var ErrLocalRecord = errors.NewStd("record is local only")

// ExhaustedError reports that every attempt failed. Last is the error of the
// final attempt; its message is what the record keeps as syncError.
type ExhaustedError struct {
	RecordID string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("push of %s failed after %d attempts: %v", e.RecordID, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ErrorCategory implements errors.CategorizedError.
func (e *ExhaustedError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryRetry
}

func notConfiguredError(recordID string) error {
	return errors.New(ErrNotConfigured).
		Component(component).
		Category(errors.CategoryConfiguration).
		RecordContext(recordID, 0).
		Build()
}

func cancelledError(err error, recordID string, attempt int) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryCancellation).
		Severity(errors.SeverityLow).
		RecordContext(recordID, attempt).
		Build()
}

func notFoundError(recordID string) error {
	return errors.Newf("record %s not found", recordID).
		Component(component).
		Category(errors.CategoryNotFound).
		RecordContext(recordID, 0).
		Build()
}

func localRecordError(recordID string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrLocalRecord, recordID)).
		Component(component).
		Category(errors.CategoryConflict).
		RecordContext(recordID, 0).
		Build()
}

// storageError passes datastore errors through unchanged and tags anything
// else as a database fault.
func storageError(err error, recordID string, attempt int, operation string) error {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return err
	}
	return errors.New(err).
		Component(component).
		Category(errors.CategoryDatabase).
		RecordContext(recordID, attempt).
		Context("operation", operation).
		Build()
}
