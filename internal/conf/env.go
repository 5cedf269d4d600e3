package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix namespaces every environment override
const envPrefix = "EVALSYNC"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "EVALSYNC_DEBUG", validateEnvBool},

		{"storage.driver", "EVALSYNC_STORAGE_DRIVER", validateEnvOneOf(DriverSQLite, DriverMySQL, DriverFile, DriverMemory)},
		{"storage.layout", "EVALSYNC_STORAGE_LAYOUT", validateEnvOneOf(LayoutSlots, LayoutKeyed)},
		{"storage.sqlite.path", "EVALSYNC_SQLITE_PATH", nil},
		{"storage.mysql.host", "EVALSYNC_MYSQL_HOST", nil},
		{"storage.mysql.port", "EVALSYNC_MYSQL_PORT", validateEnvPort},
		{"storage.mysql.password", "EVALSYNC_MYSQL_PASSWORD", nil},
		{"storage.file.dir", "EVALSYNC_FILE_DIR", nil},

		{"credential.sealing_key", "EVALSYNC_SEALING_KEY", nil},

		{"sync.max_attempts", "EVALSYNC_SYNC_MAX_ATTEMPTS", validateEnvPositiveInt},
		{"sync.initial_backoff", "EVALSYNC_SYNC_INITIAL_BACKOFF", validateEnvDuration},
		{"sync.http_timeout", "EVALSYNC_SYNC_HTTP_TIMEOUT", validateEnvDuration},

		{"webserver.listen", "EVALSYNC_LISTEN", nil},

		{"mqtt.enabled", "EVALSYNC_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "EVALSYNC_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "EVALSYNC_MQTT_PASSWORD", nil},

		{"telemetry.sentry_dsn", "EVALSYNC_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds the explicit overrides and validates any that are set.
// Invalid values are reported but still bound; ValidateSettings rejects them.
func bindEnvVars() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value, ok := os.LookupEnv(binding.EnvVar); ok {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s: %v", binding.EnvVar, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value %q", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %q", value)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer, got %q", value)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fmt.Errorf("must be a positive duration like 1s or 500ms, got %q", value)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a URL with scheme and host, got %q", value)
	}
	return nil
}

func validateEnvOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		v := strings.TrimSpace(value)
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s, got %q", strings.Join(allowed, ", "), value)
	}
}
