package datastore

import (
	"github.com/spf13/afero"

	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
)

// Open builds the store described by the process configuration: driver and
// layout from settings.Storage, credential protection from
// settings.Credential. Extra options are applied after the configured ones.
func Open(settings *conf.Settings, opts ...Option) (Interface, error) {
	log := logger.Global().Module(component)

	base := []Option{WithLogger(log)}
	if key := settings.Credential.SealingKey; key != "" {
		sealed, err := NewSealedObfuscator(key)
		if err != nil {
			return nil, err
		}
		base = append(base, WithObfuscator(sealed))
	}
	opts = append(base, opts...)

	storage := &settings.Storage
	if storage.Layout == conf.LayoutKeyed {
		db, err := OpenDB(storage, log)
		if err != nil {
			return nil, err
		}
		store, err := NewKeyed(db, opts...)
		if err != nil {
			_ = closeDB(db)
			return nil, err
		}
		log.Info("record store ready", logger.String("driver", storage.Driver), logger.String("layout", conf.LayoutKeyed))
		return store, nil
	}

	backend, err := openBackend(storage, log)
	if err != nil {
		return nil, err
	}
	log.Info("record store ready", logger.String("driver", storage.Driver), logger.String("layout", conf.LayoutSlots))
	return New(backend, opts...), nil
}

func openBackend(storage *conf.StorageSettings, log logger.Logger) (Backend, error) {
	switch storage.Driver {
	case conf.DriverMemory:
		log.Warn("using in-memory record store, records will not survive a restart")
		return NewMemoryBackend(), nil
	case conf.DriverFile:
		return NewFileBackend(afero.NewOsFs(), storage.File.Dir)
	case conf.DriverSQLite, conf.DriverMySQL:
		db, err := OpenDB(storage, log)
		if err != nil {
			return nil, err
		}
		backend, err := NewSQLBackend(db)
		if err != nil {
			_ = closeDB(db)
			return nil, err
		}
		return backend, nil
	default:
		return nil, errors.Newf("unknown storage driver %q", storage.Driver).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
}
