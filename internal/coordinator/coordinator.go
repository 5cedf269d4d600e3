// Package coordinator drives the push of evaluation records to the remote
// registry. It owns the sync state of a record: every attempt is persisted
// before the network call, failures are retried with exponential backoff
// and the final outcome is written back to the store.
package coordinator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/observability/metrics"
)

// Store is the part of the record store the coordinator uses.
// datastore.Interface satisfies it.
type Store interface {
	ListRecords(ctx context.Context) ([]*evaluation.Record, error)
	GetRecord(ctx context.Context, id string) (*evaluation.Record, bool, error)
	SaveRecord(ctx context.Context, rec *evaluation.Record) error
	GetSettings(ctx context.Context) (evaluation.AppSettings, error)
}

// statusLister is implemented by stores that filter by status natively.
type statusLister interface {
	ListByStatus(ctx context.Context, statuses ...evaluation.Status) ([]*evaluation.Record, error)
}

// Pusher makes one push attempt. *syncclient.Client implements it.
type Pusher interface {
	Push(ctx context.Context, target evaluation.RegistryConfig, rec *evaluation.Record) error
}

// Coordinator runs push invocations. Safe for concurrent use; pushes of the
// same record must be serialized by the caller unless WithSerializedPushes
// is set. Serialized callers share one invocation, which keeps running until
// the last of them cancels.
type Coordinator struct {
	store  Store
	pusher Pusher

	clock       Clock
	backoff     BackoffPolicy
	maxAttempts int
	concurrency int
	notifier    StatusNotifier
	metrics     SyncRecorder
	log         logger.Logger

	serialize bool
	inflight  singleflight.Group
	flightsMu sync.Mutex
	flights   map[string]*flight

	mu     sync.RWMutex
	target evaluation.RegistryConfig
}

// New creates a coordinator. Without WithTarget the target is unconfigured
// until Reload or SetTarget is called.
func New(store Store, pusher Pusher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		pusher:      pusher,
		clock:       RealClock{},
		backoff:     ExponentialBackoff(DefaultInitialBackoff),
		maxAttempts: DefaultMaxAttempts,
		concurrency: DefaultConcurrency,
		metrics:     noopRecorder{},
		flights:     make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module(component)
	}
	return c
}

// Target returns the current push target.
func (c *Coordinator) Target() evaluation.RegistryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// SetTarget replaces the push target. Invocations already running keep the
// target they started with.
func (c *Coordinator) SetTarget(target evaluation.RegistryConfig) {
	c.mu.Lock()
	c.target = target
	c.mu.Unlock()
}

// Reload reads the target from the stored settings. On a read failure the
// current target is kept.
func (c *Coordinator) Reload(ctx context.Context) error {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	c.SetTarget(settings.Registry)
	c.log.Debug("push target reloaded",
		logger.Bool("enabled", settings.Registry.Enabled),
		logger.Bool("configured", settings.Registry.Configured()))
	return nil
}

// PushWithRetry pushes rec, updating its sync state in place and in the
// store. maxAttempts < 1 selects the configured default. The returned error
// is nil on success, wraps ErrNotConfigured when no attempt could be made,
// wraps *ExhaustedError when every attempt failed, carries the cancellation
// category when ctx ended first, or is the storage fault that stopped the
// invocation.
func (c *Coordinator) PushWithRetry(ctx context.Context, rec *evaluation.Record, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = c.maxAttempts
	}

	target := c.Target()
	if !target.Configured() {
		c.metrics.RecordPush(metrics.OutcomeNotConfigured)
		return notConfiguredError(rec.ID)
	}

	if !c.serialize {
		return c.run(ctx, rec, target, maxAttempts)
	}

	f := c.joinFlight(ctx, rec.ID)
	ch := c.inflight.DoChan(rec.ID, func() (any, error) {
		defer c.endFlight(rec.ID, f)
		err := c.run(f.ctx, rec, target, maxAttempts)
		return rec.Clone(), err
	})
	select {
	case res := <-ch:
		c.leaveFlight(rec.ID, f)
		if res.Shared {
			if final, ok := res.Val.(*evaluation.Record); ok && final != rec {
				rec.SyncState = final.SyncState
			}
		}
		return res.Err
	case <-ctx.Done():
		c.leaveFlight(rec.ID, f)
		return cancelledError(fmt.Errorf("push of %s abandoned: %w", rec.ID, ctx.Err()), rec.ID, 0)
	}
}

// flight is the context shared by the callers of one serialized push. It is
// cancelled only once every caller has given up.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *Coordinator) joinFlight(ctx context.Context, id string) *flight {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()
	f, ok := c.flights[id]
	if !ok {
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: shared, cancel: cancel}
		c.flights[id] = f
	}
	f.waiters++
	return f
}

func (c *Coordinator) leaveFlight(id string, f *flight) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[id] == f {
		delete(c.flights, id)
	}
}

// endFlight detaches f once its run is over so later callers start afresh.
func (c *Coordinator) endFlight(id string, f *flight) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()
	if c.flights[id] == f {
		delete(c.flights, id)
	}
}

// run is one invocation of the attempt loop.
func (c *Coordinator) run(ctx context.Context, rec *evaluation.Record, target evaluation.RegistryConfig, maxAttempts int) error {
	c.metrics.PushStarted()
	defer c.metrics.PushFinished()

	log := c.log.With(logger.String("record_id", rec.ID))
	var lastErr error

	for k := 1; k <= maxAttempts; k++ {
		if ctx.Err() != nil {
			return c.abort(ctx, log, rec, lastErr, k-1)
		}

		rec.BeginAttempt(k, c.clock.Now())
		if err := c.persist(ctx, rec, rec.Status, k, "begin_attempt"); err != nil {
			return err
		}

		start := time.Now()
		err := c.pusher.Push(ctx, target, rec)
		elapsed := time.Since(start).Seconds()
		if err == nil {
			c.metrics.RecordAttempt(metrics.StatusSuccess, elapsed)
			from := rec.Status
			rec.MarkSynced()
			// the registry already has the record; a late cancel must not lose that
			if err := c.persist(context.WithoutCancel(ctx), rec, from, k, "mark_synced"); err != nil {
				return err
			}
			c.metrics.RecordPush(metrics.OutcomeSynced)
			log.Info("record synced", logger.Int("attempt", k))
			return nil
		}

		c.metrics.RecordAttempt(metrics.StatusError, elapsed)
		lastErr = err
		if ctx.Err() != nil {
			return c.abort(ctx, log, rec, lastErr, k)
		}
		if k == maxAttempts {
			break
		}

		wait := c.backoff(k)
		log.Warn("push attempt failed, backing off",
			logger.Int("attempt", k),
			logger.Int("max_attempts", maxAttempts),
			logger.Duration("backoff", wait),
			logger.Error(err))
		c.metrics.RecordBackoff(wait.Seconds())

		select {
		case <-c.clock.After(wait):
		case <-ctx.Done():
			return c.abort(ctx, log, rec, lastErr, k)
		}
	}

	from := rec.Status
	rec.MarkFailed(lastErr.Error())
	if err := c.persist(context.WithoutCancel(ctx), rec, from, maxAttempts, "mark_failed"); err != nil {
		return err
	}
	c.metrics.RecordPush(metrics.OutcomeExhausted)
	log.Error("push failed, attempts exhausted",
		logger.Int("attempts", maxAttempts),
		logger.Error(lastErr))

	return errors.New(&ExhaustedError{RecordID: rec.ID, Attempts: maxAttempts, Last: lastErr}).
		Component(component).
		Category(errors.CategoryRetry).
		RecordContext(rec.ID, maxAttempts).
		Build()
}

// abort ends an invocation whose context is done. The last failure, if any,
// is kept on the record with the status unchanged.
func (c *Coordinator) abort(ctx context.Context, log logger.Logger, rec *evaluation.Record, lastErr error, attempt int) error {
	cause := ctx.Err()
	if lastErr != nil && rec.Status != evaluation.StatusSynced {
		rec.SyncError = lastErr.Error()
		if err := c.persist(context.WithoutCancel(ctx), rec, rec.Status, attempt, "record_cancellation"); err != nil {
			return err
		}
	}
	c.metrics.RecordPush(metrics.OutcomeCancelled)
	log.Info("push cancelled", logger.Int("attempt", attempt), logger.Error(cause))
	return cancelledError(fmt.Errorf("push of %s cancelled: %w", rec.ID, cause), rec.ID, attempt)
}

// persist saves rec and reports the change. from is the status before the
// change being persisted.
func (c *Coordinator) persist(ctx context.Context, rec *evaluation.Record, from evaluation.Status, attempt int, operation string) error {
	if err := c.store.SaveRecord(ctx, rec); err != nil {
		c.metrics.RecordPush(metrics.OutcomeStorageFault)
		c.log.Error("failed to persist sync state",
			logger.String("record_id", rec.ID),
			logger.String("operation", operation),
			logger.Error(err))
		return storageError(err, rec.ID, attempt, operation)
	}
	if from != rec.Status {
		c.metrics.RecordTransition(from.String(), rec.Status.String())
	}
	if c.notifier != nil {
		c.notifier.NotifyStatus(context.WithoutCancel(ctx), rec.Clone())
	}
	return nil
}

// PushByID loads the record with id and pushes it. Records kept local are
// refused with a conflict error; synced records are returned as they are.
func (c *Coordinator) PushByID(ctx context.Context, id string, maxAttempts int) (*evaluation.Record, error) {
	rec, found, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFoundError(id)
	}
	if !rec.Status.Pushable() {
		if rec.Status == evaluation.StatusSynced {
			c.log.Debug("record already synced, push skipped", logger.String("record_id", id))
			return rec, nil
		}
		return rec, localRecordError(id)
	}
	return rec, c.PushWithRetry(ctx, rec, maxAttempts)
}

// PushResult is the outcome of one record in PushPending.
type PushResult struct {
	RecordID string
	Status   evaluation.Status
	Attempts int
	Err      error
}

// Summary collects PushPending results, oldest record first.
type Summary struct {
	Results []PushResult
}

// Synced counts records that ended synced.
func (s Summary) Synced() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts records that did not sync.
func (s Summary) Failed() int {
	return len(s.Results) - s.Synced()
}

// PendingBatches reports how many rounds of up to the configured concurrency
// a PushPending call started now would need.
func (c *Coordinator) PendingBatches(ctx context.Context) (int, error) {
	pending, err := c.pending(ctx)
	if err != nil {
		return 0, err
	}
	return (len(pending) + c.concurrency - 1) / c.concurrency, nil
}

// PushPending pushes every queued and failed record, different records in
// parallel up to the configured concurrency. Per-record failures are
// reported in the summary; the error is non-nil only when the pending set
// could not be determined or the target is not configured.
func (c *Coordinator) PushPending(ctx context.Context, maxAttempts int) (Summary, error) {
	if !c.Target().Configured() {
		c.metrics.RecordPush(metrics.OutcomeNotConfigured)
		return Summary{}, notConfiguredError("")
	}

	pending, err := c.pending(ctx)
	if err != nil {
		return Summary{}, err
	}

	results := make([]PushResult, len(pending))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, rec := range pending {
		g.Go(func() error {
			err := c.PushWithRetry(ctx, rec, maxAttempts)
			results[i] = PushResult{
				RecordID: rec.ID,
				Status:   rec.Status,
				Attempts: rec.SyncAttempts,
				Err:      err,
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Results: results}
	c.log.Info("pending push finished",
		logger.Int("records", len(results)),
		logger.Int("synced", summary.Synced()),
		logger.Int("failed", summary.Failed()))
	return summary, nil
}

func (c *Coordinator) pending(ctx context.Context) ([]*evaluation.Record, error) {
	var (
		records []*evaluation.Record
		err     error
	)
	if lister, ok := c.store.(statusLister); ok {
		records, err = lister.ListByStatus(ctx, evaluation.StatusQueued, evaluation.StatusFailed)
	} else {
		records, err = c.store.ListRecords(ctx)
		records = evaluation.FilterByStatus(records, evaluation.StatusQueued, evaluation.StatusFailed)
	}
	if err != nil {
		return nil, err
	}
	evaluation.SortByTimestampDesc(records)
	slices.Reverse(records)
	return records, nil
}
