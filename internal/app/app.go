package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fhcypma/ydag/internal/config"
	"github.com/fhcypma/ydag/internal/pipeline"
)

// App encapsulates the tool's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	cfg     *Config
	toolCfg config.Config
	loader  *pipeline.Loader
	builder *pipeline.Builder
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Task and summary
// output goes to outW, logs to errW. A failure to load the tool
// configuration is a fatal startup error and panics; command entry points
// recover it into an exit code.
func NewApp(outW, errW io.Writer, cfg *Config) *App {
	toolCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}

	level := cfg.LogLevel
	if level == "" {
		level = toolCfg.LogLevel
	}
	format := cfg.LogFormat
	if format == "" {
		format = toolCfg.LogFormat
	}
	logger := newLogger(level, format, errW)
	logger.Debug("Logger configured successfully.", "level", level, "format", format)

	return &App{
		outW:    outW,
		logger:  logger,
		cfg:     cfg,
		toolCfg: toolCfg,
		loader:  pipeline.NewLoader(),
		builder: pipeline.NewBuilder(outW),
	}
}

// Logger returns the application's logger. This is primarily for testing.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
