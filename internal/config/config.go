// Package config loads the tool-level configuration file. Pipeline files
// declare what runs; this file tunes how the tool behaves: default worker
// limits, logging, and where run history is kept.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the tool configuration. Every field has a working default, so an
// absent config file is not an error.
type Config struct {
	// Concurrency is the default worker limit for runs. A pipeline's own
	// concurrency setting and the --concurrency flag both override it.
	Concurrency int `yaml:"concurrency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is either text or json.
	LogFormat string `yaml:"log_format"`

	// HistoryPath is the SQLite file runs are recorded into.
	HistoryPath string `yaml:"history_path"`

	// HistoryLimit caps how many runs the history command lists.
	HistoryLimit int `yaml:"history_limit"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Concurrency:  1,
		LogLevel:     "info",
		LogFormat:    "text",
		HistoryPath:  defaultHistoryPath(),
		HistoryLimit: 20,
	}
}

// Load reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/ydag/config.yaml or ~/.config/ydag/config.yaml, and a
// missing file there simply yields the defaults. An explicitly given path
// must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "ydag", "config.yaml")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Concurrency < 1 {
		return cfg, fmt.Errorf("config %s: concurrency must be at least 1, got %d", path, cfg.Concurrency)
	}
	if cfg.HistoryLimit < 1 {
		return cfg, fmt.Errorf("config %s: history_limit must be at least 1, got %d", path, cfg.HistoryLimit)
	}
	return cfg, nil
}

// defaultHistoryPath resolves $XDG_DATA_HOME/ydag/history.db or
// ~/.local/share/ydag/history.db.
func defaultHistoryPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "ydag", "history.db")
}
