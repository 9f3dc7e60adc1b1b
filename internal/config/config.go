package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	WorkspaceCount  int    `yaml:"workspaceCount" json:"workspaceCount"`
	DebounceMs      int    `yaml:"debounceMs" json:"debounceMs"`
	IPCTimeoutMs    int    `yaml:"ipcTimeoutMs" json:"ipcTimeoutMs"`
	HistorySize     int    `yaml:"historySize" json:"historySize"`
	StateFile       string `yaml:"stateFile" json:"stateFile"`
	AssignmentsFile string `yaml:"assignmentsFile" json:"assignmentsFile"`
	LogLevel        string `yaml:"logLevel" json:"logLevel"`
}

// UnmarshalYAML handles deprecated fields while decoding configuration
// files.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		WorkspaceCount   int    `yaml:"workspaceCount"`
		DebounceMs       *int   `yaml:"debounceMs"`
		LegacyDebounceMs *int   `yaml:"debounceDelayMs"`
		IPCTimeoutMs     int    `yaml:"ipcTimeoutMs"`
		HistorySize      int    `yaml:"historySize"`
		StateFile        string `yaml:"stateFile"`
		AssignmentsFile  string `yaml:"assignmentsFile"`
		LogLevel         string `yaml:"logLevel"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.WorkspaceCount = raw.WorkspaceCount
	c.IPCTimeoutMs = raw.IPCTimeoutMs
	c.HistorySize = raw.HistorySize
	c.StateFile = raw.StateFile
	c.AssignmentsFile = raw.AssignmentsFile
	c.LogLevel = raw.LogLevel

	switch {
	case raw.DebounceMs != nil:
		c.DebounceMs = *raw.DebounceMs
	case raw.LegacyDebounceMs != nil:
		c.DebounceMs = *raw.LegacyDebounceMs
	default:
		c.DebounceMs = 0
	}

	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a configuration file. A missing file is not an
// error: the defaults describe a complete working setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WorkspaceCount == 0 {
		c.WorkspaceCount = 70
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = 500
	}
	if c.IPCTimeoutMs == 0 {
		c.IPCTimeoutMs = 1000
	}
	if c.HistorySize == 0 {
		c.HistorySize = 100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	stateDir := defaultStateDir()
	if c.StateFile == "" {
		c.StateFile = filepath.Join(stateDir, "monitors.json")
	}
	if c.AssignmentsFile == "" {
		c.AssignmentsFile = filepath.Join(stateDir, "workspaces.json")
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "hyprdist")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hyprdist")
	}
	return filepath.Join(home, ".local", "state", "hyprdist")
}

// Validate performs basic sanity checks.
func (c *Config) Validate() error {
	if c.WorkspaceCount < 1 {
		return fmt.Errorf("workspaceCount must be positive, got %d", c.WorkspaceCount)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("debounceMs cannot be negative")
	}
	if c.IPCTimeoutMs < 1 {
		return fmt.Errorf("ipcTimeoutMs must be positive, got %d", c.IPCTimeoutMs)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("historySize must be positive, got %d", c.HistorySize)
	}
	if c.StateFile == "" {
		return fmt.Errorf("stateFile cannot be empty")
	}
	if c.AssignmentsFile == "" {
		return fmt.Errorf("assignmentsFile cannot be empty")
	}
	return nil
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// IPCTimeout returns the per-call IPC timeout as a duration.
func (c *Config) IPCTimeout() time.Duration {
	return time.Duration(c.IPCTimeoutMs) * time.Millisecond
}
