package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/evalsync/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("storage.driver", DriverSQLite)
	viper.SetDefault("storage.layout", LayoutSlots)
	viper.SetDefault("storage.sqlite.path", "evalsync.db")
	viper.SetDefault("storage.mysql.host", "localhost")
	viper.SetDefault("storage.mysql.port", 3306)
	viper.SetDefault("storage.mysql.username", "evalsync")
	viper.SetDefault("storage.mysql.password", "")
	viper.SetDefault("storage.mysql.database", "evalsync")
	viper.SetDefault("storage.file.dir", "data")

	viper.SetDefault("credential.sealing_key", "")

	viper.SetDefault("sync.max_attempts", 5)
	viper.SetDefault("sync.initial_backoff", time.Second)
	viper.SetDefault("sync.http_timeout", 30*time.Second)
	viper.SetDefault("sync.concurrency", 4)
	viper.SetDefault("sync.user_agent", "evalsync")

	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.push_rate", 2.0)
	viper.SetDefault("webserver.push_burst", 5)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "evalsync")
	viper.SetDefault("mqtt.topic", "evalsync/records")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.sentry_dsn", "")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", true)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
}

// DefaultSettings returns the settings a fresh install starts with.
func DefaultSettings() *Settings {
	return &Settings{
		Storage: StorageSettings{
			Driver: DriverSQLite,
			Layout: LayoutSlots,
			SQLite: SQLiteSettings{Path: "evalsync.db"},
			MySQL:  MySQLSettings{Host: "localhost", Port: 3306, Username: "evalsync", Database: "evalsync"},
			File:   FileSettings{Dir: "data"},
		},
		Sync: SyncSettings{
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			HTTPTimeout:    30 * time.Second,
			Concurrency:    4,
			UserAgent:      "evalsync",
		},
		WebServer: WebServerSettings{Listen: ":8080", PushRate: 2, PushBurst: 5},
		MQTT:      MQTTSettings{Broker: "tcp://localhost:1883", ClientID: "evalsync", Topic: "evalsync/records"},
		Logging: logger.LoggingConfig{
			DefaultLevel: logger.DefaultLogLevel,
			Timezone:     "Local",
			Console:      &logger.ConsoleOutput{Enabled: true, Level: logger.DefaultLogLevel},
			FileOutput:   &logger.FileOutput{Enabled: true, Path: logger.DefaultLogPath, Level: logger.DefaultLogLevel},
		},
	}
}
