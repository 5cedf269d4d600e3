package datastore

import (
	"encoding/json"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
)

func decodeRecords(data []byte, found bool, operation string) ([]*evaluation.Record, error) {
	if !found || len(data) == 0 {
		return []*evaluation.Record{}, nil
	}
	var records []*evaluation.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, corruptError(err, operation, "slot", RecordsSlot)
	}
	if records == nil {
		records = []*evaluation.Record{}
	}
	return records, nil
}

func encodeRecords(records []*evaluation.Record, operation string) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryValidation).
			Context("operation", operation).
			Build()
	}
	return data, nil
}

func decodeRecord(data []byte, operation, id string) (*evaluation.Record, error) {
	var rec evaluation.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, corruptError(err, operation, "record_id", id)
	}
	return &rec, nil
}

func validateForSave(rec *evaluation.Record) error {
	switch {
	case rec == nil:
		return errors.ValidationError("cannot save a nil record")
	case rec.ID == "":
		return errors.ValidationError("cannot save a record without an id")
	case !rec.Status.Valid():
		return errors.Newf("record %s has invalid status %d", rec.ID, uint8(rec.Status)).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// decodeSettings reads stored settings over the defaults and reveals the
// credential. Any failure yields defaults and the reason, which callers log.
func decodeSettings(data []byte, obf Obfuscator) (evaluation.AppSettings, error) {
	settings := evaluation.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return evaluation.DefaultSettings(), err
	}
	key, err := obf.Reveal(settings.Registry.APIKey)
	if err != nil {
		return evaluation.DefaultSettings(), err
	}
	settings.Registry.APIKey = key
	return settings, nil
}

func encodeSettings(settings evaluation.AppSettings, obf Obfuscator) ([]byte, error) {
	concealed, err := obf.Conceal(settings.Registry.APIKey)
	if err != nil {
		return nil, err
	}
	settings.Registry.APIKey = concealed
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryValidation).
			Context("operation", "encode_settings").
			Build()
	}
	return data, nil
}

func warnUnreadableSettings(log logger.Logger, err error) {
	log.Warn("stored settings are unreadable, using defaults", logger.Error(err))
}
