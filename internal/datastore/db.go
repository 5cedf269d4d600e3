package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// OpenDB opens the SQL database selected by settings.Driver. Only the sqlite
// and mysql drivers are SQL drivers.
func OpenDB(settings *conf.StorageSettings, log logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Global().Module(component)
	}
	gormConfig := &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("sql"), slowQueryThreshold),
	}

	switch settings.Driver {
	case conf.DriverSQLite:
		return openSQLite(settings.SQLite.Path, gormConfig, log)
	case conf.DriverMySQL:
		return openMySQL(&settings.MySQL, gormConfig, log)
	default:
		return nil, errors.Newf("storage driver %q is not an SQL driver", settings.Driver).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func openSQLite(path string, gormConfig *gorm.Config, log logger.Logger) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, slotDirPermissions); err != nil {
			return nil, fileError(err, "create_database_dir", "path", path)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		log.Error("failed to open SQLite database", logger.String("path", path), logger.Error(err))
		return nil, dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open", "driver", conf.DriverSQLite)
	}

	// SQLite allows one writer; a single connection keeps transactions
	// from tripping over SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", "driver", conf.DriverSQLite)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Info("opened SQLite database", logger.String("path", path))
	return db, nil
}

func openMySQL(cfg *conf.MySQLSettings, gormConfig *gorm.Config, log logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		log.Error("failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Error(err))
		return nil, dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open", "driver", conf.DriverMySQL)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", "driver", conf.DriverMySQL)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("opened MySQL database",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database))
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}
