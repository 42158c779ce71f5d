package app

import (
	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/logger"
)

// NewLogger builds the central logger from settings and installs it as the
// global logger. Debug forces the debug level on the console.
func NewLogger(settings *conf.Settings) (*logger.CentralLogger, error) {
	level := settings.Logging.Level
	if settings.Debug {
		level = "debug"
	}

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     settings.Logging.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
		ModuleLevels: settings.Logging.ModuleLevels,
	}
	if settings.Logging.File.Enabled {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    settings.Logging.File.Path,
			Level:   level,
		}
	}

	cl, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(cl)
	return cl, nil
}
