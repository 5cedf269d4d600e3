package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/observability/metrics"
	"github.com/tphakala/evalsync/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCoordinator(store Store, pusher Pusher, clock Clock, opts ...Option) *Coordinator {
	base := []Option{
		WithTarget(configuredTarget()),
		WithClock(clock),
		WithLogger(quietLogger()),
	}
	return New(store, pusher, append(base, opts...)...)
}

func TestPushWithRetry_FirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	clock := testutil.NewFakeClock(testutil.FixedTime)
	pusher := &scriptedPusher{}

	c := newCoordinator(store, pusher, clock)
	require.NoError(t, c.PushWithRetry(t.Context(), rec, 5))

	assert.Equal(t, evaluation.StatusSynced, rec.Status)
	assert.Equal(t, 1, rec.SyncAttempts)
	assert.Empty(t, rec.SyncError)
	require.NotNil(t, rec.LastSyncAttempt)
	assert.True(t, rec.LastSyncAttempt.Equal(testutil.FixedTime))
	assert.Empty(t, clock.Waits())

	got := stored(t, store, "eval_1")
	assert.Equal(t, evaluation.StatusSynced, got.Status)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Equal(t, rec.Payload, got.Payload, "payload is never modified")

	calls := pusher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, configuredTarget(), calls[0].Target)
}

func TestPushWithRetry_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	clock := testutil.NewFakeClock(testutil.FixedTime)
	pusher := &scriptedPusher{results: []error{registryDown(), registryDown(), nil}}

	c := newCoordinator(store, pusher, clock)
	require.NoError(t, c.PushWithRetry(t.Context(), rec, 5))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Waits())
	assert.Len(t, pusher.Calls(), 3)

	got := stored(t, store, "eval_1")
	assert.Equal(t, evaluation.StatusSynced, got.Status)
	assert.Equal(t, 3, got.SyncAttempts)
	assert.Empty(t, got.SyncError)
	require.NotNil(t, got.LastSyncAttempt)
	assert.True(t, got.LastSyncAttempt.Equal(testutil.FixedTime.Add(3*time.Second)),
		"last attempt is stamped after both backoff waits")
}

func TestPushWithRetry_Exhaustion(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	clock := testutil.NewFakeClock(testutil.FixedTime)
	lastErr := errors.NewStd("remote registry error: 500 Internal Server Error")
	pusher := &scriptedPusher{results: []error{registryDown(), registryDown(), registryDown(), registryDown(), lastErr}}
	recorder := newCountingRecorder()

	c := newCoordinator(store, pusher, clock, WithMetrics(recorder))
	err := c.PushWithRetry(t.Context(), rec, 5)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.ErrorIs(t, err, lastErr)
	assert.True(t, errors.IsCategory(err, errors.CategoryRetry))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, clock.Waits())
	assert.Equal(t, 15*time.Second, clock.TotalWait())

	got := stored(t, store, "eval_1")
	assert.Equal(t, evaluation.StatusFailed, got.Status)
	assert.Equal(t, 5, got.SyncAttempts)
	assert.Equal(t, "remote registry error: 500 Internal Server Error", got.SyncError)

	assert.Equal(t, 5, recorder.attempts[metrics.StatusError])
	assert.Equal(t, 1, recorder.outcomes[metrics.OutcomeExhausted])
	assert.Equal(t, []float64{1, 2, 4, 8}, recorder.backoffs)
	assert.Equal(t, []string{"queued->failed"}, recorder.transitions)
	assert.Zero(t, recorder.inflight)
}

func TestPushWithRetry_PersistsBeforeEachAttempt(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	clock := testutil.NewFakeClock(testutil.FixedTime)

	var seen []int
	pusher := &scriptedPusher{results: []error{registryDown(), registryDown(), registryDown()}}
	pusher.onPush = func(ctx context.Context, r *evaluation.Record) {
		got := stored(t, store, r.ID)
		seen = append(seen, got.SyncAttempts)
		assert.Equal(t, evaluation.StatusQueued, got.Status, "status unchanged while attempting")
	}

	c := newCoordinator(store, pusher, clock)
	require.Error(t, c.PushWithRetry(t.Context(), rec, 3))
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestPushWithRetry_NotConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target evaluation.RegistryConfig
	}{
		{"disabled", evaluation.RegistryConfig{Endpoint: testEndpoint, APIKey: "abc123"}},
		{"empty endpoint", evaluation.RegistryConfig{Enabled: true, APIKey: "abc123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newStore(t)
			rec := seed(t, store, "eval_1", evaluation.StatusQueued)
			pusher := &scriptedPusher{}
			clock := testutil.NewFakeClock(testutil.FixedTime)

			c := New(store, pusher, WithTarget(tt.target), WithClock(clock), WithLogger(quietLogger()))
			err := c.PushWithRetry(t.Context(), rec, 5)
			require.ErrorIs(t, err, ErrNotConfigured)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

			assert.Empty(t, pusher.Calls())
			got := stored(t, store, "eval_1")
			assert.Zero(t, got.SyncAttempts)
			assert.Nil(t, got.LastSyncAttempt)
			assert.Equal(t, evaluation.StatusQueued, got.Status)
		})
	}
}

func TestPushWithRetry_DefaultAttempts(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	pusher := &scriptedPusher{failIDs: map[string]error{"eval_1": registryDown()}}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime), WithMaxAttempts(3))
	require.Error(t, c.PushWithRetry(t.Context(), rec, 0))
	assert.Len(t, pusher.Calls(), 3)
	assert.Equal(t, 3, stored(t, store, "eval_1").SyncAttempts)
}

func TestPushWithRetry_ManualRetryRestartsCount(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := testutil.SampleRecord("eval_1", evaluation.StatusFailed)
	rec.SyncAttempts = 5
	rec.SyncError = "remote registry error: 503 Service Unavailable"
	require.NoError(t, store.SaveRecord(t.Context(), rec))

	c := newCoordinator(store, &scriptedPusher{}, testutil.NewFakeClock(testutil.FixedTime))
	require.NoError(t, c.PushWithRetry(t.Context(), rec, 5))

	got := stored(t, store, "eval_1")
	assert.Equal(t, evaluation.StatusSynced, got.Status)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Empty(t, got.SyncError)
}

func TestPushWithRetry_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	clock := testutil.NewFakeClock(testutil.FixedTime)
	clock.Hold()
	pusher := &scriptedPusher{failIDs: map[string]error{"eval_1": registryDown()}}
	recorder := newCountingRecorder()

	c := newCoordinator(store, pusher, clock, WithMetrics(recorder))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.PushWithRetry(ctx, rec, 5) }()

	wait := testutil.WaitForChannel(t, clock.Waiting(), testutil.DefaultTestTimeout, "backoff wait not started")
	assert.Equal(t, time.Second, wait)
	cancel()

	err := testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "push did not return after cancel")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))

	assert.Len(t, pusher.Calls(), 1, "no attempt after cancellation")
	got := stored(t, store, "eval_1")
	assert.Equal(t, evaluation.StatusQueued, got.Status)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Equal(t, "remote registry error: 503 Service Unavailable", got.SyncError)
	assert.Equal(t, 1, recorder.outcomes[metrics.OutcomeCancelled])
}

func TestPushWithRetry_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	pusher := &scriptedPusher{}
	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := c.PushWithRetry(ctx, rec, 5)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Empty(t, pusher.Calls())
	assert.Zero(t, stored(t, store, "eval_1").SyncAttempts)
}

func TestPushWithRetry_StorageFaultAborts(t *testing.T) {
	t.Parallel()

	store := &faultyStore{Interface: newStore(t)}
	rec := testutil.SampleRecord("eval_1", evaluation.StatusQueued)
	pusher := &scriptedPusher{}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime))
	err := c.PushWithRetry(t.Context(), rec, 5)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	assert.Empty(t, pusher.Calls(), "no network call without a durable attempt record")
}

func TestPushWithRetry_StorageFaultAfterSuccess(t *testing.T) {
	t.Parallel()

	store := &faultyStore{Interface: newStore(t), okSaves: 1}
	rec := testutil.SampleRecord("eval_1", evaluation.StatusQueued)
	pusher := &scriptedPusher{}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime))
	err := c.PushWithRetry(t.Context(), rec, 5)
	require.Error(t, err)
	assert.Len(t, pusher.Calls(), 1)
	assert.Equal(t, 1, stored(t, store, "eval_1").SyncAttempts)
}

func TestPushWithRetry_NotifiesEveryChange(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)
	notifier := &collectingNotifier{}
	pusher := &scriptedPusher{results: []error{registryDown(), nil}}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime), WithNotifier(notifier))
	require.NoError(t, c.PushWithRetry(t.Context(), rec, 5))

	snaps := notifier.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, evaluation.StatusQueued, snaps[0].Status)
	assert.Equal(t, 1, snaps[0].SyncAttempts)
	assert.Equal(t, 2, snaps[1].SyncAttempts)
	assert.Equal(t, evaluation.StatusSynced, snaps[2].Status)
	assert.NotSame(t, rec, snaps[2], "notifier gets a snapshot")
}

func TestPushWithRetry_SerializedPushesCollapse(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, "eval_1", evaluation.StatusQueued)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	pusher := &scriptedPusher{}
	pusher.onPush = func(ctx context.Context, r *evaluation.Record) {
		started <- struct{}{}
		<-release
	}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime), WithSerializedPushes())

	first := stored(t, store, "eval_1")
	second := stored(t, store, "eval_1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Go(func() { errs[0] = c.PushWithRetry(t.Context(), first, 5) })
	testutil.WaitForChannel(t, started, testutil.DefaultTestTimeout, "first push did not start")
	wg.Go(func() { errs[1] = c.PushWithRetry(t.Context(), second, 5) })

	// Give the second caller time to join the in-flight push.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, pusher.Calls(), 1)
	assert.Equal(t, evaluation.StatusSynced, first.Status)
	assert.Equal(t, evaluation.StatusSynced, second.Status)
	assert.Equal(t, 1, second.SyncAttempts)
}

func TestPushWithRetry_CancelAfterAcceptedPush(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	rec := seed(t, store, "eval_1", evaluation.StatusQueued)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	pusher := &scriptedPusher{onPush: func(context.Context, *evaluation.Record) { cancel() }}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime))
	require.NoError(t, c.PushWithRetry(ctx, rec, 5))

	got := stored(t, store, "eval_1")
	assert.Equal(t, evaluation.StatusSynced, got.Status, "accepted push must be durable")
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Len(t, pusher.Calls(), 1)
}

func TestPushWithRetry_SerializedSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, "eval_1", evaluation.StatusQueued)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	pusher := &scriptedPusher{}
	pusher.onPush = func(context.Context, *evaluation.Record) {
		started <- struct{}{}
		<-release
	}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime), WithSerializedPushes())

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	defer cancelFirst()

	first := stored(t, store, "eval_1")
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Go(func() { errs[0] = c.PushWithRetry(firstCtx, first, 5) })
	testutil.WaitForChannel(t, started, testutil.DefaultTestTimeout, "first push did not start")
	second := stored(t, store, "eval_1")
	wg.Go(func() { errs[1] = c.PushWithRetry(t.Context(), second, 5) })

	// Give the second caller time to join the in-flight push.
	time.Sleep(100 * time.Millisecond)
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.True(t, errors.IsCategory(errs[0], errors.CategoryCancellation))
	require.NoError(t, errs[1])
	assert.Equal(t, evaluation.StatusSynced, second.Status)
	assert.Equal(t, evaluation.StatusSynced, stored(t, store, "eval_1").Status)
	assert.Len(t, pusher.Calls(), 1)
}

func TestPushWithRetry_SerializedCancelledWhenAllCallersLeave(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, "eval_1", evaluation.StatusQueued)

	started := make(chan struct{}, 1)
	stopped := make(chan struct{})
	pusher := &scriptedPusher{results: []error{context.Canceled}}
	pusher.onPush = func(ctx context.Context, _ *evaluation.Record) {
		started <- struct{}{}
		<-ctx.Done()
		close(stopped)
	}

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime), WithSerializedPushes())

	rec := stored(t, store, "eval_1")
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.PushWithRetry(ctx, rec, 5) }()

	testutil.WaitForChannel(t, started, testutil.DefaultTestTimeout, "push did not start")
	cancel()
	err := testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "caller did not return")
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	testutil.WaitForChannel(t, stopped, testutil.DefaultTestTimeout, "shared push kept running")

	assert.Eventually(t, func() bool {
		return stored(t, store, "eval_1").SyncError == context.Canceled.Error()
	}, testutil.DefaultTestTimeout, 10*time.Millisecond)
}

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) Push(ctx context.Context, target evaluation.RegistryConfig, rec *evaluation.Record) error {
	args := m.Called(ctx, target, rec)
	return args.Error(0)
}

func TestPushByID(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, "eval_queued", evaluation.StatusQueued)
	seed(t, store, "eval_local", evaluation.StatusLocal)
	seed(t, store, "eval_synced", evaluation.StatusSynced)

	pusher := &mockPusher{}
	pusher.On("Push", mock.Anything, configuredTarget(), mock.MatchedBy(func(r *evaluation.Record) bool {
		return r.ID == "eval_queued"
	})).Return(nil).Once()

	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime))

	rec, err := c.PushByID(t.Context(), "eval_queued", 5)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StatusSynced, rec.Status)

	_, err = c.PushByID(t.Context(), "eval_missing", 5)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	rec, err = c.PushByID(t.Context(), "eval_local", 5)
	require.ErrorIs(t, err, ErrLocalRecord)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
	assert.Equal(t, evaluation.StatusLocal, rec.Status)

	// already synced: no registry call, no error
	rec, err = c.PushByID(t.Context(), "eval_synced", 5)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StatusSynced, rec.Status)

	pusher.AssertExpectations(t)
}

func TestPushPending(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	statuses := map[string]evaluation.Status{
		"eval_local":   evaluation.StatusLocal,
		"eval_queued1": evaluation.StatusQueued,
		"eval_queued2": evaluation.StatusQueued,
		"eval_failed":  evaluation.StatusFailed,
		"eval_synced":  evaluation.StatusSynced,
		"eval_broken":  evaluation.StatusQueued,
	}
	for id, status := range statuses {
		seed(t, store, id, status)
	}

	pusher := &scriptedPusher{failIDs: map[string]error{"eval_broken": registryDown()}}
	c := newCoordinator(store, pusher, testutil.NewFakeClock(testutil.FixedTime), WithConcurrency(3))

	batches, err := c.PendingBatches(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, batches, "4 pending records, 3 at a time")

	summary, err := c.PushPending(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, summary.Results, 4)
	assert.Equal(t, 3, summary.Synced())
	assert.Equal(t, 1, summary.Failed())

	for _, call := range pusher.Calls() {
		assert.NotEqual(t, "eval_local", call.RecordID)
		assert.NotEqual(t, "eval_synced", call.RecordID)
	}

	assert.Equal(t, evaluation.StatusLocal, stored(t, store, "eval_local").Status)
	assert.Zero(t, stored(t, store, "eval_synced").SyncAttempts)
	assert.Equal(t, evaluation.StatusSynced, stored(t, store, "eval_failed").Status)

	broken := stored(t, store, "eval_broken")
	assert.Equal(t, evaluation.StatusFailed, broken.Status)
	assert.Equal(t, 2, broken.SyncAttempts)
}

func TestPushPending_NotConfigured(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	seed(t, store, "eval_1", evaluation.StatusQueued)
	pusher := &scriptedPusher{}

	c := New(store, pusher, WithLogger(quietLogger()))
	_, err := c.PushPending(t.Context(), 5)
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, pusher.Calls())
}

func TestReload(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	settings := evaluation.DefaultSettings()
	settings.Registry = configuredTarget()
	require.NoError(t, store.SaveSettings(t.Context(), settings))

	c := New(store, &scriptedPusher{}, WithLogger(quietLogger()))
	assert.False(t, c.Target().Configured())

	require.NoError(t, c.Reload(t.Context()))
	assert.Equal(t, configuredTarget(), c.Target())

	c.SetTarget(evaluation.RegistryConfig{})
	assert.False(t, c.Target().Configured())
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	policy := ExponentialBackoff(time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for k, d := range want {
		assert.Equal(t, d, policy(k+1), "attempt %d", k+1)
	}
	assert.Equal(t, time.Second, policy(0))

	half := ExponentialBackoff(500 * time.Millisecond)
	assert.Equal(t, 2*time.Second, half(3))
}
