// Package config loads the bible365 configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. All fields are optional; a missing
// client id disables cloud features without error.
type Config struct {
	// ClientID is the OAuth client identifier for cloud sync.
	ClientID string `yaml:"client_id"`
	// Language is the default display language ("en" or "ru").
	Language string `yaml:"language"`
	// DebounceMs is the push debounce window in milliseconds.
	DebounceMs int `yaml:"debounce_ms"`
	// PullIntervalSeconds is the background pull cadence.
	PullIntervalSeconds int `yaml:"pull_interval_seconds"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFile, when set, mirrors log output to a rotating file.
	LogFile string `yaml:"log_file"`
}

// FileName is the config file's name inside Dir().
const FileName = "config.yml"

// Defaults used when the config file is absent or a field is unset.
const (
	DefaultDebounceMs          = 2000
	DefaultPullIntervalSeconds = 15
	DefaultLanguage            = "en"
)

// Dir returns the configuration directory (~/.config/bible365).
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(base, "bible365"), nil
}

// DataDir returns the local data directory (~/.local/share-style) where the
// progress database lives.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "bible365"), nil
}

// Load reads the config file at path. A missing file yields defaults, not
// an error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Language:            DefaultLanguage,
		DebounceMs:          DefaultDebounceMs,
		PullIntervalSeconds: DefaultPullIntervalSeconds,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = DefaultDebounceMs
	}
	if cfg.PullIntervalSeconds <= 0 {
		cfg.PullIntervalSeconds = DefaultPullIntervalSeconds
	}
	return cfg, nil
}

// LoadDefault reads the config from the standard location.
func LoadDefault() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, FileName))
}

// CloudEnabled reports whether cloud sync is configured.
func (c *Config) CloudEnabled() bool {
	return c.ClientID != ""
}
