// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure. Provider selection is
// credential-driven (see Credentials/provider.NewRegistryFromCredentials),
// not configured here — there is no per-provider endpoint/model table.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Hooks   HooksConfig   `toml:"hooks"`
}

// ServerConfig holds the RPC transport's listen settings (§4.8).
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// ListenAddrOrDefault returns the configured listen address or ":8787" if unset.
func (s ServerConfig) ListenAddrOrDefault() string {
	if s.ListenAddr == "" {
		return ":8787"
	}
	return s.ListenAddr
}

// StorageConfig holds the event store's database settings (§3).
type StorageConfig struct {
	Path string `toml:"path"`
}

// PathOrDefault returns the configured database path, or events.db inside
// the runtime's data directory if unset.
func (s StorageConfig) PathOrDefault() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	dir, err := EnsureDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.db"), nil
}

// HooksConfig holds the hook engine's execution limits (§4.9).
type HooksConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// TimeoutOrDefault returns the configured hook timeout or 30 seconds if unset.
func (h HooksConfig) TimeoutOrDefault() int {
	if h.TimeoutSeconds <= 0 {
		return 30
	}
	return h.TimeoutSeconds
}

// Load reads configuration from a TOML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Config file is required
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	// File must exist
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Load from file
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Hooks.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("hooks.timeout_seconds=%d must not be negative", c.Hooks.TimeoutSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"TRONRUN_LISTEN_ADDR", func(v string) {
			if v != "" {
				cfg.Server.ListenAddr = v
			}
		}},
		{"TRONRUN_STORAGE_PATH", func(v string) {
			if v != "" {
				cfg.Storage.Path = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
}

// DataDir returns the path to the runtime's data directory (~/.config/tronrun).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tronrun"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}
