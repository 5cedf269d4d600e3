package datastore

import (
	"context"
	"slices"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/evalsync/internal/errors"
)

// slotRow is one named slot in the storage_slots table.
type slotRow struct {
	Name      string         `gorm:"primaryKey;size:64"`
	Data      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (slotRow) TableName() string { return "storage_slots" }

// SQLBackend stores slots as rows of the storage_slots table. Each Update
// runs in one transaction; on MySQL the slot row is locked FOR UPDATE so
// several processes can share the database.
type SQLBackend struct {
	db       *gorm.DB
	lockRows bool
	mu       sync.Mutex // serializes read-modify-write within the process
}

// NewSQLBackend migrates the storage_slots table and returns a backend
// using db. The backend owns db and closes it on Close.
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if err := db.AutoMigrate(&slotRow{}); err != nil {
		return nil, dbError(err, "migrate", "table", "storage_slots")
	}
	return &SQLBackend{
		db:       db,
		lockRows: db.Dialector.Name() == "mysql",
	}, nil
}

func (b *SQLBackend) Read(ctx context.Context, slot string) ([]byte, bool, error) {
	var row slotRow
	err := b.db.WithContext(ctx).Where("name = ?", slot).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, dbError(err, "read_slot", "slot", slot)
	}
	return slices.Clone([]byte(row.Data)), true, nil
}

func (b *SQLBackend) Update(ctx context.Context, slot string, fn UpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if b.lockRows {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row slotRow
		found := true
		if err := query.Where("name = ?", slot).Take(&row).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return dbError(err, "read_slot", "slot", slot)
			}
			found = false
		}

		next, err := fn(slices.Clone([]byte(row.Data)), found)
		if err != nil || next == nil {
			return err
		}

		updated := slotRow{Name: slot, Data: datatypes.JSON(next), UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&updated).Error; err != nil {
			return dbError(err, "write_slot", "slot", slot)
		}
		return nil
	})
	if err != nil {
		return dbError(err, "update_slot", "slot", slot)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	return closeDB(b.db)
}
