package datastore

import (
	"context"
	"slices"
	"time"

	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/observability/metrics"
)

// SlotStore keeps the whole record collection in the RecordsSlot and the
// settings in the SettingsSlot of a Backend.
type SlotStore struct {
	backend Backend
	opts    storeOptions
}

// New returns a slot store over backend. The store owns the backend.
func New(backend Backend, opts ...Option) *SlotStore {
	return &SlotStore{backend: backend, opts: buildOptions(opts)}
}

func (s *SlotStore) ListRecords(ctx context.Context) (records []*evaluation.Record, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpListRecords, start, err) }()

	data, found, err := s.backend.Read(ctx, RecordsSlot)
	if err != nil {
		return nil, err
	}
	records, err = decodeRecords(data, found, metrics.OpListRecords)
	if err != nil {
		return nil, err
	}
	s.opts.countRecords(records)
	return records, nil
}

// ListByStatus returns the records whose status is one of statuses.
func (s *SlotStore) ListByStatus(ctx context.Context, statuses ...evaluation.Status) ([]*evaluation.Record, error) {
	records, err := s.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	return evaluation.FilterByStatus(records, statuses...), nil
}

func (s *SlotStore) GetRecord(ctx context.Context, id string) (rec *evaluation.Record, found bool, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpGetRecord, start, err) }()

	data, ok, err := s.backend.Read(ctx, RecordsSlot)
	if err != nil {
		return nil, false, err
	}
	records, err := decodeRecords(data, ok, metrics.OpGetRecord)
	if err != nil {
		return nil, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return nil, false, nil
}

func (s *SlotStore) SaveRecord(ctx context.Context, rec *evaluation.Record) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpSaveRecord, start, err) }()

	if err := validateForSave(rec); err != nil {
		return err
	}
	stored := rec.Clone()

	return s.backend.Update(ctx, RecordsSlot, func(current []byte, found bool) ([]byte, error) {
		records, err := decodeRecords(current, found, metrics.OpSaveRecord)
		if err != nil {
			return nil, err
		}
		if i := slices.IndexFunc(records, func(r *evaluation.Record) bool { return r.ID == stored.ID }); i >= 0 {
			records[i] = stored
		} else {
			records = append(records, stored)
		}
		data, err := encodeRecords(records, metrics.OpSaveRecord)
		if err != nil {
			return nil, err
		}
		s.opts.observeSize(len(data))
		return data, nil
	})
}

func (s *SlotStore) DeleteRecord(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpDeleteRecord, start, err) }()

	return s.backend.Update(ctx, RecordsSlot, func(current []byte, found bool) ([]byte, error) {
		records, err := decodeRecords(current, found, metrics.OpDeleteRecord)
		if err != nil {
			return nil, err
		}
		if !containsID(records, id) {
			return nil, nil
		}
		kept := slices.DeleteFunc(records, func(r *evaluation.Record) bool { return r.ID == id })
		return encodeRecords(kept, metrics.OpDeleteRecord)
	})
}

func (s *SlotStore) GetSettings(ctx context.Context) (settings evaluation.AppSettings, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpGetSettings, start, err) }()

	data, found, err := s.backend.Read(ctx, SettingsSlot)
	if err != nil {
		return evaluation.DefaultSettings(), err
	}
	if !found {
		return evaluation.DefaultSettings(), nil
	}
	settings, decodeErr := decodeSettings(data, s.opts.obfuscator)
	if decodeErr != nil {
		warnUnreadableSettings(s.opts.log, decodeErr)
	}
	return settings, nil
}

func (s *SlotStore) SaveSettings(ctx context.Context, settings evaluation.AppSettings) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpSaveSettings, start, err) }()

	data, err := encodeSettings(settings, s.opts.obfuscator)
	if err != nil {
		return err
	}
	err = s.backend.Update(ctx, SettingsSlot, func([]byte, bool) ([]byte, error) {
		return data, nil
	})
	if err == nil {
		s.opts.log.Debug("settings saved",
			logger.Bool("registry_enabled", settings.Registry.Enabled),
			logger.String("measurement_unit", string(settings.MeasurementUnit)))
	}
	return err
}

func (s *SlotStore) Close() error {
	return s.backend.Close()
}

func containsID(records []*evaluation.Record, id string) bool {
	return slices.ContainsFunc(records, func(r *evaluation.Record) bool { return r.ID == id })
}
