// Package config loads vigil's settings from an optional YAML file and
// VIGIL_* environment overrides. Precedence is defaults, then file, then
// environment, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is consulted when no explicit config path is given.
const DefaultFile = "vigil.yaml"

var (
	ErrNoCommand = errors.New("config: command is required")
	ErrNoPaths   = errors.New("config: at least one watch path is required")
)

// Config is the full runtime configuration.
type Config struct {
	// Paths are the files and directories to watch, non-recursively.
	Paths []string `yaml:"paths"`
	// Command is the argv to run and restart.
	Command []string `yaml:"command"`
	// Dir is the command's working directory. Empty means inherit.
	Dir string `yaml:"dir"`
	// Env holds KEY=VALUE pairs appended to the inherited environment.
	Env []string `yaml:"env"`
	// QuietWindowMS is the debounce window in milliseconds.
	QuietWindowMS int `yaml:"quiet_window_ms"`
	// CancelOnRestart stops a superseded command instead of leaving it
	// running until it exits on its own.
	CancelOnRestart bool `yaml:"cancel_on_restart"`
	// Pty runs the command under a pseudo-terminal.
	Pty bool `yaml:"pty"`
	// APIAddr enables the HTTP API when non-empty, e.g. "127.0.0.1:8334".
	APIAddr string `yaml:"api_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline configuration before file and environment
// layers apply.
func Default() Config {
	return Config{
		QuietWindowMS: 200,
		LogLevel:      "info",
	}
}

// Load reads the configuration file at path over the defaults. An empty
// path tries DefaultFile and treats its absence as no file at all; an
// explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultFile
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv layers VIGIL_* variables over the configuration. The lookup
// parameter exists so tests do not touch the real environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if c == nil || lookup == nil {
		return
	}
	if value, ok := lookup("VIGIL_PATHS"); ok {
		c.Paths = splitList(value)
	}
	if value, ok := lookup("VIGIL_QUIET_WINDOW_MS"); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
			c.QuietWindowMS = parsed
		}
	}
	if value, ok := lookup("VIGIL_API_ADDR"); ok {
		c.APIAddr = strings.TrimSpace(value)
	}
	if value, ok := lookup("VIGIL_LOG_LEVEL"); ok {
		c.LogLevel = strings.TrimSpace(value)
	}
	if value, ok := lookup("VIGIL_PTY"); ok {
		c.Pty = parseBool(value, c.Pty)
	}
	if value, ok := lookup("VIGIL_CANCEL_ON_RESTART"); ok {
		c.CancelOnRestart = parseBool(value, c.CancelOnRestart)
	}
}

// Validate checks the configuration is runnable.
func (c Config) Validate() error {
	if len(c.Command) == 0 {
		return ErrNoCommand
	}
	if len(c.Paths) == 0 {
		return ErrNoPaths
	}
	if c.QuietWindowMS <= 0 {
		return fmt.Errorf("config: quiet_window_ms must be positive, got %d", c.QuietWindowMS)
	}
	for _, pair := range c.Env {
		if !strings.Contains(pair, "=") {
			return fmt.Errorf("config: env entry %q is not KEY=VALUE", pair)
		}
	}
	return nil
}

// QuietWindow returns the debounce window as a duration.
func (c Config) QuietWindow() time.Duration {
	return time.Duration(c.QuietWindowMS) * time.Millisecond
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(value string, fallback bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
