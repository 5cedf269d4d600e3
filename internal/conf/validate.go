package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateStorageSettings,
		validateSyncSettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validateTelemetrySettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateStorageSettings(s *Settings) error {
	st := &s.Storage
	switch st.Driver {
	case DriverSQLite:
		if st.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case DriverMySQL:
		if st.MySQL.Host == "" || st.MySQL.Database == "" {
			return fmt.Errorf("storage.mysql.host and storage.mysql.database are required for the mysql driver")
		}
		if st.MySQL.Port < 1 || st.MySQL.Port > 65535 {
			return fmt.Errorf("storage.mysql.port must be between 1 and 65535")
		}
	case DriverFile:
		if st.File.Dir == "" {
			return fmt.Errorf("storage.file.dir is required for the file driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, mysql, file, memory (got %q)", st.Driver)
	}

	switch st.Layout {
	case LayoutSlots:
	case LayoutKeyed:
		if st.Driver != DriverSQLite && st.Driver != DriverMySQL {
			return fmt.Errorf("storage.layout keyed requires the sqlite or mysql driver")
		}
	default:
		return fmt.Errorf("storage.layout must be slots or keyed (got %q)", st.Layout)
	}
	return nil
}

func validateSyncSettings(s *Settings) error {
	sy := &s.Sync
	switch {
	case sy.MaxAttempts < 1:
		return fmt.Errorf("sync.max_attempts must be at least 1")
	case sy.InitialBackoff <= 0:
		return fmt.Errorf("sync.initial_backoff must be positive")
	case sy.HTTPTimeout <= 0:
		return fmt.Errorf("sync.http_timeout must be positive")
	case sy.Concurrency < 1:
		return fmt.Errorf("sync.concurrency must be at least 1")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	ws := &s.WebServer
	if ws.Listen == "" {
		return fmt.Errorf("webserver.listen is required")
	}
	if ws.PushRate <= 0 || ws.PushBurst < 1 {
		return fmt.Errorf("webserver.push_rate must be positive and webserver.push_burst at least 1")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	u, err := url.Parse(m.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker must be a URL like tcp://host:1883")
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if s.Telemetry.Enabled && s.Telemetry.SentryDSN == "" {
		return fmt.Errorf("telemetry.sentry_dsn is required when telemetry is enabled")
	}
	return nil
}
