// Package config loads and saves the Sublime CLI configuration.
//
// Configuration lives in a TOML file at ~/.config/sublime/config.toml.
// Environment variables take precedence over file contents, and
// command-line flags take precedence over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Environment variables recognized by the CLI.
const (
	EnvAPIKey  = "SUBLIME_API_KEY"
	EnvSaveDir = "SUBLIME_SAVE_DIR"
)

// Config holds the persistent CLI configuration.
type Config struct {
	// APIKey is sent in the Key header of every API request.
	APIKey string `toml:"api_key"`

	// SaveDir is the default directory for items retrieved from the
	// Sublime environment. Empty means the current directory.
	SaveDir string `toml:"save_dir"`

	// PrivacyAck records that the user has accepted that messages are
	// uploaded to Sublime servers for processing. Asked once.
	PrivacyAck bool `toml:"privacy_ack"`

	Logging LoggingConfig `toml:"logging"`
}

// LoggingConfig controls diagnostic output.
type LoggingConfig struct {
	Output string `toml:"output"` // "stderr", "stdout", or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// NewDefaultConfig returns a Config populated with defaults.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "warn",
		},
	}
}

// DefaultPath returns the location of the configuration file.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sublime", "config.toml"), nil
}

// Load reads the configuration file at path and applies environment
// variable overrides. A missing file is not an error: defaults are
// returned so first runs work before setup.
func Load(path string) (Config, error) {
	cfg := NewDefaultConfig()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
		}
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}
	if dir := os.Getenv(EnvSaveDir); dir != "" {
		cfg.SaveDir = dir
	}

	return cfg, nil
}

// Save writes cfg to path, merging with any existing file so that
// fields left empty here never clobber previously saved values.
func Save(path string, cfg Config) error {
	existing := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, &existing); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to parse existing configuration file '%s': %w", path, err)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = existing.APIKey
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = existing.SaveDir
	}
	if !cfg.PrivacyAck {
		cfg.PrivacyAck = existing.PrivacyAck
	}
	if cfg.Logging == (LoggingConfig{}) {
		cfg.Logging = existing.Logging
	}

	if cfg.SaveDir != "" {
		info, err := os.Stat(cfg.SaveDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("save directory '%s' is not a valid directory", cfg.SaveDir)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open configuration file for writing: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}
