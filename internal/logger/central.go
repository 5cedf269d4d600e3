package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata" // LoadLocation must work on hosts without zoneinfo
)

// traceLevel sits below slog.LevelDebug.
const traceLevel = slog.Level(-8)

// route is where one module's entries go.
type route struct {
	handler slog.Handler
	level   slog.Level
}

// CentralLogger owns the log outputs and hands out module loggers.
type CentralLogger struct {
	tz           *time.Location
	defaultLevel slog.Level
	base         slog.Handler
	routes       map[string]route
	levels       map[string]slog.Level

	mu      sync.Mutex
	writers []*BufferedFileWriter
}

// NewCentralLogger builds a logger whose console output goes to stdout.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	return NewWriterLogger(cfg, os.Stdout)
}

// NewWriterLogger builds a logger whose console output goes to w. File
// outputs in cfg are opened as configured.
func NewWriterLogger(cfg *LoggingConfig, w io.Writer) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.New("logging config is nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		tz:           tz,
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		routes:       make(map[string]route),
		levels:       make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, lvl := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(lvl)
	}

	var console slog.Handler
	if cfg.Console.Enabled {
		console = newTextHandler(w, parseLogLevel(cfg.Console.Level), tz)
	}

	base := make([]slog.Handler, 0, 2)
	if console != nil {
		base = append(base, console)
	}
	if cfg.FileOutput.Enabled {
		fw, err := cl.openWriter(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		base = append(base, newJSONHandler(fw, parseLogLevel(cfg.FileOutput.Level), tz))
	}
	if len(base) == 0 {
		base = append(base, newTextHandler(w, cl.defaultLevel, tz))
	}
	cl.base = newFanoutHandler(base...)

	opened := make(map[string]*BufferedFileWriter)
	for module, out := range cfg.ModuleOutputs {
		if !out.Enabled || out.FilePath == "" {
			continue
		}
		fw, ok := opened[out.FilePath]
		if !ok {
			if fw, err = cl.openWriter(out.FilePath); err != nil {
				_ = cl.Close()
				return nil, fmt.Errorf("module %s: %w", module, err)
			}
			opened[out.FilePath] = fw
		}

		level := cl.levelFor(module)
		if out.Level != "" {
			level = parseLogLevel(out.Level)
		}
		handlers := []slog.Handler{newJSONHandler(fw, level, tz)}
		if out.ConsoleAlso && console != nil {
			handlers = append(handlers, console)
		}
		cl.routes[module] = route{handler: newFanoutHandler(handlers...), level: level}
	}

	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func (cl *CentralLogger) openWriter(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	fw, err := NewBufferedFileWriter(path)
	if err != nil {
		return nil, err
	}
	cl.mu.Lock()
	cl.writers = append(cl.writers, fw)
	cl.mu.Unlock()
	return fw, nil
}

func (cl *CentralLogger) levelFor(module string) slog.Level {
	if lvl, ok := cl.levels[module]; ok {
		return lvl
	}
	return cl.defaultLevel
}

// Module returns the logger for a top-level module. Modules with a
// dedicated file write only there unless console_also is set.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	if r, ok := cl.routes[name]; ok {
		return newModuleLogger(name, r.handler, r.level)
	}
	return newModuleLogger(name, cl.base, cl.levelFor(name))
}

// Flush pushes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	return cl.eachWriter((*BufferedFileWriter).Flush)
}

// Close flushes, syncs and closes every file output.
func (cl *CentralLogger) Close() error {
	return cl.eachWriter((*BufferedFileWriter).Close)
}

func (cl *CentralLogger) eachWriter(fn func(*BufferedFileWriter) error) error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	var errs []error
	for _, w := range cl.writers {
		if err := fn(w); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.FilePath(), err))
		}
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	return slogLevel(LogLevel(level))
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelTrace:
		return traceLevel
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
