package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/datastore"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/testutil"
)

type okPusher struct{}

func (okPusher) Push(context.Context, evaluation.RegistryConfig, *evaluation.Record) error {
	return nil
}

// recordingBroker is an mqtt.Client that keeps every payload.
type recordingBroker struct {
	mu           sync.Mutex
	payloads     [][]byte
	sent         chan struct{}
	disconnected bool
}

func (b *recordingBroker) Connect(context.Context) error { return nil }
func (b *recordingBroker) IsConnected() bool             { return true }

func (b *recordingBroker) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	b.payloads = append(b.payloads, payload)
	b.mu.Unlock()
	b.sent <- struct{}{}
	return nil
}

func (b *recordingBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
}

func memorySettings() *conf.Settings {
	s := conf.DefaultSettings()
	s.Storage.Driver = conf.DriverMemory
	s.Sync.InitialBackoff = time.Millisecond
	return s
}

func TestNewWithMemoryStore(t *testing.T) {
	a, err := New(t.Context(), memorySettings(), WithPusher(okPusher{}))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	assert.False(t, a.Coordinator.Target().Configured())
	assert.NotNil(t, a.Metrics)
}

func TestStoredSettingsBecomeTarget(t *testing.T) {
	store := datastore.New(datastore.NewMemoryBackend())
	settings := evaluation.DefaultSettings()
	settings.Registry = evaluation.RegistryConfig{Endpoint: "https://registry.example/api", APIKey: "k", Enabled: true}
	require.NoError(t, store.SaveSettings(t.Context(), settings))

	a, err := New(t.Context(), memorySettings(), WithStore(store), WithPusher(okPusher{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.True(t, a.Coordinator.Target().Configured())
}

func TestStatusMessagesReachBroker(t *testing.T) {
	settings := memorySettings()
	settings.MQTT.Enabled = true

	store := datastore.New(datastore.NewMemoryBackend())
	reg := evaluation.DefaultSettings()
	reg.Registry = evaluation.RegistryConfig{Endpoint: "https://registry.example/api", APIKey: "k", Enabled: true}
	require.NoError(t, store.SaveSettings(t.Context(), reg))
	rec := testutil.SampleRecord("eval_mqtt", evaluation.StatusQueued)
	require.NoError(t, store.SaveRecord(t.Context(), rec))

	broker := &recordingBroker{sent: make(chan struct{}, 16)}
	a, err := New(t.Context(), settings, WithStore(store), WithPusher(okPusher{}), WithMQTTClient(broker))
	require.NoError(t, err)

	_, err = a.Coordinator.PushByID(t.Context(), "eval_mqtt", 0)
	require.NoError(t, err)

	// one message for the attempt, one for the synced status
	testutil.WaitForChannel(t, broker.sent, 2*time.Second, "first status message")
	testutil.WaitForChannel(t, broker.sent, 2*time.Second, "second status message")
	require.NoError(t, a.Close())

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.True(t, broker.disconnected)

	var last map[string]any
	require.NoError(t, json.Unmarshal(broker.payloads[len(broker.payloads)-1], &last))
	assert.Equal(t, "eval_mqtt", last["id"])
	assert.Equal(t, "synced", last["status"])
}

func TestPushContextBudget(t *testing.T) {
	a := &App{Settings: memorySettings()}
	a.Settings.Sync.HTTPTimeout = time.Second
	a.Settings.Sync.InitialBackoff = time.Second
	a.Settings.Sync.MaxAttempts = 3

	ctx, cancel := a.PushContext(t.Context(), 0, 1)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(11*time.Second), deadline, time.Second)
}

func TestPushContextBudgetFollowsAttemptsAndBatches(t *testing.T) {
	a := &App{Settings: memorySettings()}
	a.Settings.Sync.HTTPTimeout = time.Second
	a.Settings.Sync.InitialBackoff = time.Second
	a.Settings.Sync.MaxAttempts = 3

	tests := []struct {
		name     string
		attempts int
		batches  int
		want     time.Duration
	}{
		// 5 x 1s timeout + 2 x 16s backoff
		{name: "attempts flag", attempts: 5, batches: 1, want: 37 * time.Second},
		{name: "pending batches", attempts: 0, batches: 3, want: 33 * time.Second},
		{name: "both", attempts: 5, batches: 2, want: 74 * time.Second},
		{name: "no batches", attempts: 0, batches: 0, want: 11 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := a.PushContext(t.Context(), tt.attempts, tt.batches)
			defer cancel()
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(tt.want), deadline, time.Second)
		})
	}
}
