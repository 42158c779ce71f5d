package app

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/wanderlist/imagebackfill/internal/buildinfo"
	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/logger"
	"github.com/wanderlist/imagebackfill/internal/telemetry"
)

// Context is what the CLI resolves once before a subcommand runs.
type Context struct {
	Build      *buildinfo.Context
	ConfigFile string

	Settings *conf.Settings
	Logger   *logger.CentralLogger
}

// NewContext creates a CLI context for the given build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Load reads settings, with explicitly set flags overriding them, and starts
// logging and error telemetry.
func (c *Context) Load(flags *pflag.FlagSet) error {
	settings, err := conf.LoadWithFlags(c.ConfigFile, flags)
	if err != nil {
		return err
	}
	settings.Version = c.Build.GetVersion()

	cl, err := NewLogger(settings)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if _, err := telemetry.Init(&settings.Telemetry, settings.Version); err != nil {
		cl.Module("telemetry").Warn("error reporting disabled", logger.Error(err))
	}

	c.Settings = settings
	c.Logger = cl
	return nil
}

// Module returns a module logger, or a discard logger before Load.
func (c *Context) Module(name string) logger.Logger {
	if c.Logger == nil {
		return logger.NewDiscard()
	}
	return c.Logger.Module(name)
}

// Close flushes telemetry and log output.
func (c *Context) Close() {
	telemetry.Flush(telemetry.FlushTimeout)
	if c.Logger != nil {
		_ = c.Logger.Close()
	}
}
