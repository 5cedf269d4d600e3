package app

import (
	"context"
	"io"

	"github.com/tphakala/evalsync/internal/buildinfo"
	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/telemetry"
)

// Env is the command-line runtime shared by every subcommand. The root
// command fills ConfigFile and Debug from flags and calls Load before any
// subcommand runs.
type Env struct {
	ConfigFile string
	Debug      bool
	// LogOutput receives console logs. Commands that print data to stdout
	// route logs to stderr so output stays parseable.
	LogOutput io.Writer

	Settings *conf.Settings

	central *logger.CentralLogger
}

// Load reads the configuration and installs the global logger and telemetry.
func (e *Env) Load() error {
	settings, err := conf.Load(e.ConfigFile)
	if err != nil {
		return err
	}
	if e.Debug {
		settings.Debug = true
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	e.Settings = settings

	var central *logger.CentralLogger
	if e.LogOutput != nil {
		central, err = logger.NewWriterLogger(&settings.Logging, e.LogOutput)
	} else {
		central, err = logger.NewCentralLogger(&settings.Logging)
	}
	if err != nil {
		return err
	}
	logger.SetGlobal(central)
	e.central = central

	return telemetry.InitSentry(&settings.Telemetry, buildinfo.Current().GetVersion())
}

// Open assembles the App from the loaded settings.
func (e *Env) Open(ctx context.Context, opts ...Option) (*App, error) {
	return New(ctx, e.Settings, opts...)
}

// Close flushes and closes the log files opened by Load.
func (e *Env) Close() error {
	if e.central == nil {
		return nil
	}
	return e.central.Close()
}
