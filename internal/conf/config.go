// Package conf loads the process configuration of evalsync: storage
// backend, sync policy, HTTP API, MQTT, telemetry and logging.
//
// Application settings that operators edit at runtime (remote endpoint,
// credential, unit preference) are not part of this package; they live in
// the record store as evaluation.AppSettings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/secrets"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// Storage layouts
const (
	LayoutSlots = "slots"
	LayoutKeyed = "keyed"
)

// Settings is the root of the process configuration.
type Settings struct {
	Debug      bool                 `yaml:"debug" mapstructure:"debug"`
	Storage    StorageSettings      `yaml:"storage" mapstructure:"storage"`
	Credential CredentialSettings   `yaml:"credential" mapstructure:"credential"`
	Sync       SyncSettings         `yaml:"sync" mapstructure:"sync"`
	WebServer  WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	MQTT       MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Telemetry  TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Logging    logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// StorageSettings selects and configures the record store backend.
type StorageSettings struct {
	Driver string         `yaml:"driver" mapstructure:"driver"` // sqlite, mysql, file or memory
	Layout string         `yaml:"layout" mapstructure:"layout"` // slots or keyed
	SQLite SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
	File   FileSettings   `yaml:"file" mapstructure:"file"`
}

// SQLiteSettings configures the SQLite database
type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MySQLSettings configures the MySQL database. Password accepts ${VAR} and file: references.
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// FileSettings configures the file slot backend
type FileSettings struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CredentialSettings controls how the remote credential is protected at rest.
// An empty SealingKey keeps the legacy base64 obfuscation.
type CredentialSettings struct {
	SealingKey string `yaml:"sealing_key" mapstructure:"sealing_key"`
}

// SyncSettings is the push policy.
type SyncSettings struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	HTTPTimeout    time.Duration `yaml:"http_timeout" mapstructure:"http_timeout"`
	Concurrency    int           `yaml:"concurrency" mapstructure:"concurrency"` // parallel records in a pending sweep
	UserAgent      string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// WebServerSettings configures the HTTP API
type WebServerSettings struct {
	Listen    string  `yaml:"listen" mapstructure:"listen"`
	PushRate  float64 `yaml:"push_rate" mapstructure:"push_rate"` // push requests per second
	PushBurst int     `yaml:"push_burst" mapstructure:"push_burst"`
}

// MQTTSettings configures the optional status publisher
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
}

// TelemetrySettings configures Sentry error reporting
type TelemetrySettings struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	SentryDSN string `yaml:"sentry_dsn" mapstructure:"sentry_dsn"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configFile (or searches the default locations when empty),
// applies environment overrides, resolves secret references and validates
// the result.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("configuration").
			Category(errors.CategoryFileParsing).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		logger.Global().Module("configuration").Warn("environment override problems", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Component("configuration").
				Category(errors.CategoryFileIO).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	for _, path := range DefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return createDefaultConfig()
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

// DefaultConfigPaths lists the directories searched for config.yaml, in order.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "evalsync"))
	}
	return append(paths, "/etc/evalsync")
}

// createDefaultConfig writes the defaults to the user config directory so
// operators have a file to edit, then continues with the in-memory defaults.
func createDefaultConfig() error {
	paths := DefaultConfigPaths()
	if len(paths) < 2 {
		return nil
	}
	configPath := filepath.Join(paths[1], "config.yaml")

	if err := SaveYAMLConfig(configPath, DefaultSettings()); err != nil {
		// A read-only home is not fatal; defaults still apply
		logger.Global().Module("configuration").Warn("could not write default config",
			logger.String("path", configPath),
			logger.Error(err))
		return nil
	}

	logger.Global().Module("configuration").Info("created default config file", logger.String("path", configPath))
	return nil
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tmpName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// resolveSecrets expands ${VAR} and file: references in secret-bearing fields.
func resolveSecrets(s *Settings) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"storage.mysql.password", &s.Storage.MySQL.Password},
		{"credential.sealing_key", &s.Credential.SealingKey},
		{"mqtt.password", &s.MQTT.Password},
		{"telemetry.sentry_dsn", &s.Telemetry.SentryDSN},
	}

	for _, f := range fields {
		resolved, err := secrets.Resolve(*f.value)
		if err != nil {
			return errors.New(fmt.Errorf("resolving %s: %w", f.name, err)).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				Build()
		}
		*f.value = resolved
	}
	return nil
}
