// Package datastore persists evaluation records and the application
// settings singleton.
//
// Two layouts implement the same Interface. The slot store keeps the whole
// record collection in one named blob and the settings in another, the
// way the capture app has always stored them; every mutation is a full
// read-modify-write executed atomically by a Backend (memory, file or SQL).
// The keyed store keeps one SQL row per record and upserts by id.
//
// The registry credential never reaches a backend in cleartext. It passes
// through an Obfuscator on save and is restored on read.
package datastore

import (
	"context"

	"github.com/tphakala/evalsync/internal/evaluation"
)

// Slot names used by the slot layout.
const (
	RecordsSlot  = "evaluation_records"
	SettingsSlot = "evaluation_settings"
)

// Interface is the record store contract shared by all layouts.
type Interface interface {
	// ListRecords returns every stored record in no particular order.
	ListRecords(ctx context.Context) ([]*evaluation.Record, error)
	// GetRecord returns the record with id. found is false when absent.
	GetRecord(ctx context.Context, id string) (rec *evaluation.Record, found bool, err error)
	// SaveRecord inserts or replaces the record with the same id.
	SaveRecord(ctx context.Context, rec *evaluation.Record) error
	// DeleteRecord removes the record with id. Deleting an absent id is a no-op.
	DeleteRecord(ctx context.Context, id string) error
	// GetSettings returns the stored settings, or defaults when none are
	// stored or the stored value cannot be read.
	GetSettings(ctx context.Context) (evaluation.AppSettings, error)
	// SaveSettings replaces the settings singleton.
	SaveSettings(ctx context.Context, settings evaluation.AppSettings) error
	Close() error
}

// StatusLister is implemented by stores that can filter by status without
// decoding records the caller does not want.
type StatusLister interface {
	ListByStatus(ctx context.Context, statuses ...evaluation.Status) ([]*evaluation.Record, error)
}
