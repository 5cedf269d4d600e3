package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"
)

const moduleKey = "module"

type moduleLogger struct {
	name    string
	handler slog.Handler
	level   slog.Level
	fields  []Field
}

func newModuleLogger(name string, h slog.Handler, level slog.Level) *moduleLogger {
	return &moduleLogger{name: name, handler: h, level: level}
}

// NewSlogLogger returns a standalone Logger writing text to w. A nil writer
// discards everything, which is what most tests want.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	lvl := slogLevel(level)
	return newModuleLogger("", newTextHandler(w, lvl, tz), lvl)
}

func (m *moduleLogger) derive(name string, fields []Field) *moduleLogger {
	return &moduleLogger{name: name, handler: m.handler, level: m.level, fields: fields}
}

// Module nests: "datastore" then "sql" logs as "datastore.sql".
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	if m.name != "" {
		name = m.name + "." + name
	}
	return m.derive(name, slices.Clone(m.fields))
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return m.derive(m.name, slices.Concat(m.fields, fields))
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if id := TraceID(ctx); id != "" {
		return m.With(String(traceIDKey, id))
	}
	return m
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(traceLevel, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(slogLevel(level), msg, fields)
}

// Flush is a no-op; the CentralLogger owns the files.
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.name != "" {
		attrs = append(attrs, slog.String(moduleKey, m.name))
	}
	for _, f := range m.fields {
		attrs = append(attrs, toAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	slog.New(m.handler).LogAttrs(context.Background(), level, msg, attrs...)
}

// toAttr converts a Field, redacting values of credential-like keys and
// scrubbing secrets out of strings.
func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		if v != "" && isSensitiveKey(f.Key) {
			return slog.String(f.Key, redactedValue)
		}
		return slog.String(f.Key, RedactSensitiveData(v))
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	}
	return slog.Any(f.Key, f.Value)
}
