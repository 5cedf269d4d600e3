// Package logger provides a structured, module-aware logging system built on log/slog.
//
// Components never construct handlers themselves. They ask the central logger
// for a module-scoped Logger and pass typed fields:
//
//	log := logger.Global().Module("coordinator")
//	log.Info("push succeeded",
//	    logger.String("record_id", rec.ID),
//	    logger.Int("attempt", k))
//
// Module loggers nest ("datastore" → "datastore.sql"), accumulate fields with
// With, and pick up trace IDs from a context via WithContext.
//
// Configuration (YAML, under the "logging" key):
//
//	logging:
//	  default_level: "info"
//	  timezone: "UTC"
//	  console:
//	    enabled: true
//	    level: "info"
//	  file_output:
//	    enabled: true
//	    path: "logs/evalsync.log"
//	    level: "debug"
//	  module_levels:
//	    coordinator: "debug"
//	  modules:
//	    api:
//	      enabled: true
//	      file_path: "logs/access.log"
//
// Console output is human-readable text, file output is JSON. Values of
// fields whose key looks like a credential are redacted before reaching any
// handler, and bearer tokens are scrubbed from string values.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel is a severity name as used in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger is what components receive. Implementations are safe for
// concurrent use and tolerate a nil receiver.
type Logger interface {
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
	// WithContext returns a logger carrying the trace ID stored in ctx.
	WithContext(ctx context.Context) Logger

	Flush() error
}

// Field is one key/value pair of a log entry.
type Field struct {
	Key   string
	Value any
}

// field interns the key.
func field[T any](key string, value T) Field {
	return Field{Key: unique.Make(key).Value(), Value: value}
}

func String(key, value string) Field { return field(key, value) }
func Int(key string, value int) Field { return field(key, value) }
func Int64(key string, value int64) Field { return field(key, value) }
func Uint64(key string, value uint64) Field { return field(key, value) }
func Bool(key string, value bool) Field { return field(key, value) }
func Time(key string, value time.Time) Field { return field(key, value) }
func Any(key string, value any) Field { return field(key, value) }

// Float64 values are rendered with three decimals.
func Float64(key string, value float64) Field { return field(key, value) }

// Duration values are rendered as strings rounded to milliseconds, e.g. "1.5s".
func Duration(key string, value time.Duration) Field { return field(key, value) }

// Error always uses the key "error" and stores the message, not the value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}
