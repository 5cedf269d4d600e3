package datastore

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/testutil"
)

// startMySQL runs a throwaway MySQL server and returns storage settings
// pointing at it. Skipped under -short or when Docker is unavailable.
func startMySQL(t *testing.T) conf.StorageSettings {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("evalsync"),
		tcmysql.WithUsername("evalsync"),
		tcmysql.WithPassword("evalsync"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return conf.StorageSettings{
		Driver: conf.DriverMySQL,
		MySQL: conf.MySQLSettings{
			Host:     host,
			Port:     portNum,
			Username: "evalsync",
			Password: "evalsync",
			Database: "evalsync",
		},
	}
}

func TestMySQLBackends(t *testing.T) {
	storage := startMySQL(t)

	for _, layout := range []string{conf.LayoutSlots, conf.LayoutKeyed} {
		t.Run(layout, func(t *testing.T) {
			settings := conf.DefaultSettings()
			settings.Storage = storage
			settings.Storage.Layout = layout

			store, err := Open(settings, WithLogger(quietLogger()))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			id := "eval_mysql_" + layout
			rec := testutil.SampleRecord(id, evaluation.StatusQueued)
			require.NoError(t, store.SaveRecord(ctx, rec))

			rec.MarkFailed("remote registry error: 500 Internal Server Error")
			rec.SyncAttempts = 5
			require.NoError(t, store.SaveRecord(ctx, rec))

			got, found, err := store.GetRecord(ctx, id)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, evaluation.StatusFailed, got.Status)
			assert.Equal(t, 5, got.SyncAttempts)
			assert.True(t, rec.Timestamp.Equal(got.Timestamp))

			app := evaluation.DefaultSettings()
			app.Registry = evaluation.RegistryConfig{Endpoint: "https://r.example", APIKey: "abc123", Enabled: true}
			require.NoError(t, store.SaveSettings(ctx, app))
			gotSettings, err := store.GetSettings(ctx)
			require.NoError(t, err)
			assert.Equal(t, app, gotSettings)

			require.NoError(t, store.DeleteRecord(ctx, id))
			_, found, err = store.GetRecord(ctx, id)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}
