package coordinator

import (
	"context"

	"github.com/tphakala/evalsync/internal/evaluation"
)

// StatusNotifier is told about every persisted sync-state change. rec is a
// snapshot the notifier may keep.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, rec *evaluation.Record)
}

// NotifierFunc adapts a function to StatusNotifier.
type NotifierFunc func(ctx context.Context, rec *evaluation.Record)

// NotifyStatus calls f.
func (f NotifierFunc) NotifyStatus(ctx context.Context, rec *evaluation.Record) { f(ctx, rec) }

// SyncRecorder receives sync metrics. *metrics.SyncMetrics implements it.
type SyncRecorder interface {
	RecordAttempt(result string, seconds float64)
	RecordPush(outcome string)
	RecordBackoff(seconds float64)
	RecordTransition(from, to string)
	PushStarted()
	PushFinished()
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(string, float64) {}
func (noopRecorder) RecordPush(string) {}
func (noopRecorder) RecordBackoff(float64) {}
func (noopRecorder) RecordTransition(string, string) {}
func (noopRecorder) PushStarted() {}
func (noopRecorder) PushFinished() {}
