package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/evalsync/internal/datastore"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/testutil"
)

const testEndpoint = "https://registry.example/api/evaluations"

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
}

func configuredTarget() evaluation.RegistryConfig {
	return evaluation.RegistryConfig{Endpoint: testEndpoint, APIKey: "abc123", Enabled: true}
}

func newStore(t *testing.T) datastore.Interface {
	t.Helper()
	store := datastore.New(datastore.NewMemoryBackend(), datastore.WithLogger(quietLogger()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seed saves a sample record and returns it.
func seed(t *testing.T, store datastore.Interface, id string, status evaluation.Status) *evaluation.Record {
	t.Helper()
	rec := testutil.SampleRecord(id, status)
	require.NoError(t, store.SaveRecord(t.Context(), rec))
	return rec
}

func stored(t *testing.T, store datastore.Interface, id string) *evaluation.Record {
	t.Helper()
	rec, found, err := store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found, "record %s missing", id)
	return rec
}

type pushCall struct {
	RecordID string
	Attempt  int
	Target   evaluation.RegistryConfig
}

// scriptedPusher answers the n-th call with results[n], succeeding once the
// script runs out. failIDs always fail.
type scriptedPusher struct {
	mu      sync.Mutex
	results []error
	failIDs map[string]error
	calls   []pushCall
	onPush  func(ctx context.Context, rec *evaluation.Record)
}

func (p *scriptedPusher) Push(ctx context.Context, target evaluation.RegistryConfig, rec *evaluation.Record) error {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, pushCall{RecordID: rec.ID, Attempt: rec.SyncAttempts, Target: target})
	hook := p.onPush
	var result error
	if err, ok := p.failIDs[rec.ID]; ok {
		result = err
	} else if n < len(p.results) {
		result = p.results[n]
	}
	p.mu.Unlock()

	if hook != nil {
		hook(ctx, rec)
	}
	return result
}

func (p *scriptedPusher) Calls() []pushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushCall(nil), p.calls...)
}

func registryDown() error {
	return errors.NewStd("remote registry error: 503 Service Unavailable")
}

// faultyStore fails every SaveRecord after the first okSaves.
type faultyStore struct {
	datastore.Interface
	mu      sync.Mutex
	okSaves int
}

func (s *faultyStore) SaveRecord(ctx context.Context, rec *evaluation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.okSaves <= 0 {
		return errors.New(errors.NewStd("disk full")).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Build()
	}
	s.okSaves--
	return s.Interface.SaveRecord(ctx, rec)
}

// collectingNotifier keeps every snapshot it is sent.
type collectingNotifier struct {
	mu        sync.Mutex
	snapshots []*evaluation.Record
}

func (n *collectingNotifier) NotifyStatus(_ context.Context, rec *evaluation.Record) {
	n.mu.Lock()
	n.snapshots = append(n.snapshots, rec)
	n.mu.Unlock()
}

func (n *collectingNotifier) Snapshots() []*evaluation.Record {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*evaluation.Record(nil), n.snapshots...)
}

// countingRecorder captures sync metrics.
type countingRecorder struct {
	mu          sync.Mutex
	attempts    map[string]int
	outcomes    map[string]int
	backoffs    []float64
	transitions []string
	inflight    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{attempts: map[string]int{}, outcomes: map[string]int{}}
}

func (r *countingRecorder) RecordAttempt(result string, _ float64) {
	r.mu.Lock()
	r.attempts[result]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordPush(outcome string) {
	r.mu.Lock()
	r.outcomes[outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordBackoff(seconds float64) {
	r.mu.Lock()
	r.backoffs = append(r.backoffs, seconds)
	r.mu.Unlock()
}

func (r *countingRecorder) RecordTransition(from, to string) {
	r.mu.Lock()
	r.transitions = append(r.transitions, from+"->"+to)
	r.mu.Unlock()
}

func (r *countingRecorder) PushStarted() {
	r.mu.Lock()
	r.inflight++
	r.mu.Unlock()
}

func (r *countingRecorder) PushFinished() {
	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
}
