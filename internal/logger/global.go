package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process-wide logger. Call once at startup.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the process-wide logger. Before SetGlobal it is an
// info-level console logger on stdout.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			tz:           time.Local,
			defaultLevel: slog.LevelInfo,
			base:         newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
		}
	}
	return global
}

const traceIDKey = "trace_id"

type traceIDContextKey struct{}

// WithTraceID stores a trace ID that WithContext loggers attach to entries.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

// TraceID returns the trace ID stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}
