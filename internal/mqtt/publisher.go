package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
)

const defaultQueueSize = 256

// StatusMessage is the JSON body published for a sync-state change.
type StatusMessage struct {
	ID           string            `json:"id"`
	Status       evaluation.Status `json:"status"`
	SyncAttempts int               `json:"syncAttempts"`
	SyncError    string            `json:"syncError,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

// StatusTopic returns the topic for record id under prefix.
func StatusTopic(prefix, id string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + id + "/status"
}

// StatusPublisher forwards record status changes to the broker from a
// background worker so pushes never wait on the broker. When the queue is
// full the change is dropped and logged.
type StatusPublisher struct {
	client  Client
	topic   string
	timeout time.Duration
	now     func() time.Time
	log     logger.Logger

	queue chan *evaluation.Record
	wg    sync.WaitGroup
	once  sync.Once
	mu    sync.RWMutex
	done  bool
}

// NewStatusPublisher starts a publisher on client. Stop must be called to
// release the worker.
func NewStatusPublisher(client Client, cfg Config, log logger.Logger) *StatusPublisher {
	if log == nil {
		log = logger.Global().Module(component)
	}
	p := &StatusPublisher{
		client:  client,
		topic:   cfg.Topic,
		timeout: cfg.PublishTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
		queue:   make(chan *evaluation.Record, defaultQueueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// NotifyStatus queues rec for publishing. It never blocks.
func (p *StatusPublisher) NotifyStatus(_ context.Context, rec *evaluation.Record) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return
	}
	select {
	case p.queue <- rec:
	default:
		p.log.Warn("status queue full, dropping update",
			logger.String("record_id", rec.ID),
			logger.String("status", rec.Status.String()))
	}
}

// Stop drains the queue and waits for the worker to exit.
func (p *StatusPublisher) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *StatusPublisher) run() {
	defer p.wg.Done()
	for rec := range p.queue {
		p.publish(rec)
	}
}

func (p *StatusPublisher) publish(rec *evaluation.Record) {
	payload, err := json.Marshal(StatusMessage{
		ID:           rec.ID,
		Status:       rec.Status,
		SyncAttempts: rec.SyncAttempts,
		SyncError:    rec.SyncError,
		Timestamp:    evaluation.FormatTimestamp(p.now()),
	})
	if err != nil {
		p.log.Error("failed to encode status message", logger.String("record_id", rec.ID), logger.Error(err))
		return
	}

	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	topic := StatusTopic(p.topic, rec.ID)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.log.Warn("failed to publish status",
			logger.String("topic", topic),
			logger.Error(err))
		return
	}
	p.log.Debug("status published", logger.String("topic", topic))
}
