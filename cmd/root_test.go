package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exportcmd "github.com/tphakala/evalsync/cmd/export"
	"github.com/tphakala/evalsync/cmd/records"
	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/coordinator"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/testutil"
)

// setupCLI writes a config using the file store in a temp dir and installs
// memory filesystems for draft input and export output.
func setupCLI(t *testing.T) (configPath string, memFs afero.Fs) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`storage:
  driver: file
  file:
    dir: %s
logging:
  console:
    enabled: false
  file_output:
    enabled: false
`, filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))

	memFs = afero.NewMemMapFs()
	draft, err := json.Marshal(testutil.SampleDraft())
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(memFs, "draft.json", draft, 0o600))

	prevRecords, prevExport := records.Fs, exportcmd.Fs
	records.Fs, exportcmd.Fs = memFs, memFs
	t.Cleanup(func() { records.Fs, exportcmd.Fs = prevRecords, prevExport })

	return configPath, memFs
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := RootCommand(&app.Env{})
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.ExecuteContext(t.Context())
	return stdout.String(), err
}

func TestRecordCommands(t *testing.T) {
	configPath, _ := setupCLI(t)

	out, err := run(t, configPath, "records", "create", "--file", "draft.json")
	require.NoError(t, err)
	var created evaluation.Record
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, strings.HasPrefix(created.ID, evaluation.IDPrefix))
	assert.Equal(t, evaluation.StatusLocal, created.Status)

	out, err = run(t, configPath, "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, created.ID)
	assert.Contains(t, out, "local")

	out, err = run(t, configPath, "records", "show", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"operatorName": "Asha Patil"`)

	_, err = run(t, configPath, "records", "show", "eval_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = run(t, configPath, "push", created.ID)
	require.Error(t, err, "local records are not pushed")

	_, err = run(t, configPath, "records", "delete", created.ID)
	require.NoError(t, err)
	_, err = run(t, configPath, "records", "delete", created.ID)
	require.NoError(t, err)

	out, err = run(t, configPath, "records", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	configPath, memFs := setupCLI(t)
	require.NoError(t, afero.WriteFile(memFs, "bad.json", []byte(`{"operatorName":""}`), 0o600))

	_, err := run(t, configPath, "records", "create", "--file", "bad.json")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = run(t, configPath, "records", "create", "--file", "draft.json", "--status", "synced")
	require.Error(t, err)
}

func TestPushRequiresTarget(t *testing.T) {
	configPath, _ := setupCLI(t)

	out, err := run(t, configPath, "records", "create", "--file", "draft.json", "--status", "queued")
	require.NoError(t, err)
	var created evaluation.Record
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	_, err = run(t, configPath, "push", created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrNotConfigured)
}

func TestPushArguments(t *testing.T) {
	configPath, _ := setupCLI(t)

	_, err := run(t, configPath, "push")
	require.Error(t, err)
	_, err = run(t, configPath, "push", "eval_x", "--pending")
	require.Error(t, err)
}

func TestSettingsCommands(t *testing.T) {
	configPath, _ := setupCLI(t)

	out, err := run(t, configPath, "settings", "set",
		"--endpoint", "https://registry.example/api/evaluations",
		"--api-key", "secret-token-9876",
		"--enabled", "--unit", "imperial")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "9876")

	out, err = run(t, configPath, "settings", "show")
	require.NoError(t, err)
	var shown evaluation.AppSettings
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.True(t, shown.Registry.Enabled)
	assert.Equal(t, evaluation.UnitImperial, shown.MeasurementUnit)
	assert.Equal(t, evaluation.MaskCredential("secret-token-9876"), shown.Registry.APIKey)

	out, err = run(t, configPath, "settings", "show", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, "secret-token-9876")

	_, err = run(t, configPath, "settings", "set", "--unit", "furlongs")
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	configPath, memFs := setupCLI(t)

	_, err := run(t, configPath, "records", "create", "--file", "draft.json")
	require.NoError(t, err)

	out, err := run(t, configPath, "export", "csv", "--output", "-")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Timestamp"))

	_, err = run(t, configPath, "export", "json", "--output", "out/records.json")
	require.NoError(t, err)
	data, err := afero.ReadFile(memFs, "out/records.json")
	require.NoError(t, err)
	var recs []evaluation.Record
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Len(t, recs, 1)

	_, err = run(t, configPath, "export", "xml")
	require.Error(t, err)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	configPath, _ := setupCLI(t)
	t.Setenv("EVALSYNC_TEST_SEALING_KEY", "a-very-long-sealing-key-0001")
	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content = append(content, []byte("credential:\n  sealing_key: ${EVALSYNC_TEST_SEALING_KEY}\n")...)
	require.NoError(t, os.WriteFile(configPath, content, 0o600))

	out, err := run(t, configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "driver: file")
	assert.NotContains(t, out, "a-very-long-sealing-key")
	assert.Contains(t, out, "0001")
}

func TestVersionNeedsNoConfig(t *testing.T) {
	var stdout bytes.Buffer
	root := RootCommand(&app.Env{})
	root.SetOut(&stdout)
	root.SetArgs([]string{"--config", "/nonexistent/config.yaml", "version"})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(stdout.String(), "evalsync "))
}
