package datastore

import (
	"time"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/observability/metrics"
)

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	obfuscator Obfuscator
	log        logger.Logger
	metrics    metrics.Recorder
}

// WithObfuscator replaces the default base64 credential obfuscator.
func WithObfuscator(o Obfuscator) Option {
	return func(opts *storeOptions) {
		if o != nil {
			opts.obfuscator = o
		}
	}
}

// WithLogger sets the logger used for warnings about unreadable data.
func WithLogger(l logger.Logger) Option {
	return func(opts *storeOptions) {
		if l != nil {
			opts.log = l
		}
	}
}

// WithMetrics records operation counts and durations. When the recorder
// also tracks record counts, listings update the per-status gauge.
func WithMetrics(r metrics.Recorder) Option {
	return func(opts *storeOptions) {
		opts.metrics = r
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{obfuscator: Base64Obfuscator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module(component)
	}
	return o
}

type recordCounter interface {
	SetRecordCount(status string, count int)
}

type sizeObserver interface {
	ObserveCollectionSize(bytes int)
}

// observe records the outcome of one store operation.
func (o *storeOptions) observe(operation string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordOperation(operation, metrics.StatusError)
		category := string(errors.CategoryGeneric)
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			category = string(ee.Category)
		}
		o.metrics.RecordError(operation, category)
		return
	}
	o.metrics.RecordOperation(operation, metrics.StatusSuccess)
}

func (o *storeOptions) countRecords(records []*evaluation.Record) {
	counter, ok := o.metrics.(recordCounter)
	if !ok {
		return
	}
	counts := make(map[evaluation.Status]int, len(evaluation.Statuses))
	for _, r := range records {
		counts[r.Status]++
	}
	for _, s := range evaluation.Statuses {
		counter.SetRecordCount(s.String(), counts[s])
	}
}

func (o *storeOptions) observeSize(n int) {
	if obs, ok := o.metrics.(sizeObserver); ok {
		obs.ObserveCollectionSize(n)
	}
}
