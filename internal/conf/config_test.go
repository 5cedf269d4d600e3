package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes content to a config.yaml in a temp dir and resets viper.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, settings.Storage.Driver)
	assert.Equal(t, LayoutSlots, settings.Storage.Layout)
	assert.Equal(t, 5, settings.Sync.MaxAttempts)
	assert.Equal(t, time.Second, settings.Sync.InitialBackoff)
	assert.Equal(t, 30*time.Second, settings.Sync.HTTPTimeout)
	assert.Equal(t, ":8080", settings.WebServer.Listen)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.Same(t, settings, GetSettings())
}

func TestLoadReadsFileValues(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: mysql
  layout: keyed
  mysql:
    host: db.local
    port: 3307
    username: sync
    password: ${EVALSYNC_TEST_DB_PASSWORD}
    database: records
sync:
  max_attempts: 3
  initial_backoff: 250ms
logging:
  default_level: debug
  module_levels:
    coordinator: trace
`)
	t.Setenv("EVALSYNC_TEST_DB_PASSWORD", "hunter2")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, settings.Storage.Driver)
	assert.Equal(t, LayoutKeyed, settings.Storage.Layout)
	assert.Equal(t, 3307, settings.Storage.MySQL.Port)
	assert.Equal(t, "hunter2", settings.Storage.MySQL.Password, "password reference should be resolved")
	assert.Equal(t, 3, settings.Sync.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, settings.Sync.InitialBackoff)
	assert.Equal(t, "trace", settings.Logging.ModuleLevels["coordinator"])
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: sqlite\n")
	t.Setenv("EVALSYNC_STORAGE_DRIVER", "file")
	t.Setenv("EVALSYNC_SYNC_MAX_ATTEMPTS", "7")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverFile, settings.Storage.Driver)
	assert.Equal(t, 7, settings.Sync.MaxAttempts)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: file\n  layout: keyed\nsync:\n  max_attempts: 0\n")

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	defaults := DefaultSettings()
	defaults.Storage.Driver = DriverMemory
	require.NoError(t, SaveYAMLConfig(path, defaults))

	viper.Reset()
	t.Cleanup(viper.Reset)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, loaded.Storage.Driver)
	assert.Equal(t, defaults.Sync, loaded.Sync)
	assert.Equal(t, defaults.WebServer, loaded.WebServer)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed away")
}
