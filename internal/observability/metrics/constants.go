// Package metrics provides constants used across metric definitions.
package metrics

// Datastore operation labels.
const (
	OpListRecords  = "list_records"
	OpGetRecord    = "get_record"
	OpSaveRecord   = "save_record"
	OpDeleteRecord = "delete_record"
	OpGetSettings  = "get_settings"
	OpSaveSettings = "save_settings"
)

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Push outcome labels.
const (
	OutcomeSynced        = "synced"
	OutcomeExhausted     = "exhausted"
	OutcomeCancelled     = "cancelled"
	OutcomeNotConfigured = "not_configured"
	OutcomeStorageFault  = "storage_fault"
)

// Histogram bucket constants
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01
	// BucketStart1s is the starting bucket for 1s histograms.
	BucketStart1s = 1.0
	// BucketStart64B is the starting bucket for byte size histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2.
	BucketFactor2 = 2

	// BucketCount8 defines 8 exponential buckets.
	BucketCount8 = 8
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
