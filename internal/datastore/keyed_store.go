package datastore

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/observability/metrics"
)

// recordRow holds one record. Status and Timestamp duplicate document
// fields so they can be filtered and ordered in SQL.
type recordRow struct {
	ID        string         `gorm:"primaryKey;size:64"`
	Status    string         `gorm:"size:16;not null;index"`
	Timestamp time.Time      `gorm:"not null;index"`
	Data      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (recordRow) TableName() string { return "evaluation_records" }

// settingsRow holds the settings singleton under a fixed id.
type settingsRow struct {
	ID        uint           `gorm:"primaryKey;autoIncrement:false"`
	Data      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (settingsRow) TableName() string { return "app_settings" }

const settingsRowID = 1

// KeyedStore keeps one row per record and upserts by id, so saving a record
// never rewrites the rest of the collection.
type KeyedStore struct {
	db   *gorm.DB
	opts storeOptions
}

// NewKeyed migrates the schema and returns a keyed store using db. The
// store owns db and closes it on Close.
func NewKeyed(db *gorm.DB, opts ...Option) (*KeyedStore, error) {
	if err := db.AutoMigrate(&recordRow{}, &settingsRow{}); err != nil {
		return nil, dbError(err, "migrate", "tables", "evaluation_records,app_settings")
	}
	return &KeyedStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *KeyedStore) ListRecords(ctx context.Context) (records []*evaluation.Record, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpListRecords, start, err) }()

	records, err = s.find(metrics.OpListRecords, s.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	s.opts.countRecords(records)
	return records, nil
}

// ListByStatus filters in SQL.
func (s *KeyedStore) ListByStatus(ctx context.Context, statuses ...evaluation.Status) (records []*evaluation.Record, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpListRecords, start, err) }()

	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, st.String())
	}
	return s.find(metrics.OpListRecords, s.db.WithContext(ctx).Where("status IN ?", names))
}

func (s *KeyedStore) find(operation string, query *gorm.DB) ([]*evaluation.Record, error) {
	var rows []recordRow
	if err := query.Order("timestamp DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, operation, "table", "evaluation_records")
	}
	records := make([]*evaluation.Record, 0, len(rows))
	for i := range rows {
		rec, err := decodeRecord(rows[i].Data, operation, rows[i].ID)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *KeyedStore) GetRecord(ctx context.Context, id string) (rec *evaluation.Record, found bool, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpGetRecord, start, err) }()

	var row recordRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, dbError(err, metrics.OpGetRecord, "record_id", id)
	}
	rec, err = decodeRecord(row.Data, metrics.OpGetRecord, id)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *KeyedStore) SaveRecord(ctx context.Context, rec *evaluation.Record) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpSaveRecord, start, err) }()

	if err := validateForSave(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return dbError(err, metrics.OpSaveRecord, "record_id", rec.ID)
	}

	row := recordRow{
		ID:        rec.ID,
		Status:    rec.Status.String(),
		Timestamp: rec.Timestamp.UTC(),
		Data:      datatypes.JSON(data),
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "timestamp", "data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return dbError(err, metrics.OpSaveRecord, "record_id", rec.ID)
	}
	return nil
}

func (s *KeyedStore) DeleteRecord(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpDeleteRecord, start, err) }()

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&recordRow{}).Error; err != nil {
		return dbError(err, metrics.OpDeleteRecord, "record_id", id)
	}
	return nil
}

func (s *KeyedStore) GetSettings(ctx context.Context) (settings evaluation.AppSettings, err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpGetSettings, start, err) }()

	var row settingsRow
	if err := s.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return evaluation.DefaultSettings(), nil
		}
		return evaluation.DefaultSettings(), dbError(err, metrics.OpGetSettings)
	}
	settings, decodeErr := decodeSettings(row.Data, s.opts.obfuscator)
	if decodeErr != nil {
		warnUnreadableSettings(s.opts.log, decodeErr)
	}
	return settings, nil
}

func (s *KeyedStore) SaveSettings(ctx context.Context, settings evaluation.AppSettings) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(metrics.OpSaveSettings, start, err) }()

	data, err := encodeSettings(settings, s.opts.obfuscator)
	if err != nil {
		return err
	}
	row := settingsRow{ID: settingsRowID, Data: datatypes.JSON(data), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return dbError(err, metrics.OpSaveSettings)
	}
	return nil
}

func (s *KeyedStore) Close() error {
	return closeDB(s.db)
}
