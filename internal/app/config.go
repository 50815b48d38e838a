package app

import (
	"errors"
	"fmt"
	"slices"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PipelinePaths are the HCL files or directories forming one pipeline.
	PipelinePaths []string

	// ConfigPath points at the tool configuration file. Empty means the
	// default XDG location, where a missing file is fine.
	ConfigPath string

	LogFormat string
	LogLevel  string

	// Concurrency overrides both the pipeline's and the tool config's worker
	// limit when positive.
	Concurrency int

	// Skip marks additional tasks to skip, on top of any the pipeline marks
	// itself.
	Skip []string

	// NoHistory disables run recording.
	NoHistory bool
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// NewConfig validates a Config for use with NewApp.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.PipelinePaths) == 0 {
		return nil, errors.New("at least one pipeline path is required")
	}
	if cfg.LogLevel != "" && !slices.Contains(validLogLevels, cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log level %q (want one of %v)", cfg.LogLevel, validLogLevels)
	}
	if cfg.LogFormat != "" && !slices.Contains(validLogFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log format %q (want one of %v)", cfg.LogFormat, validLogFormats)
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	return &cfg, nil
}
