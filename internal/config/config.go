// Package config loads and persists client configuration from a YAML
// file in the user's config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the client configuration. Durations are expressed in
// plain integer units so the YAML stays hand-editable.
type Config struct {
	// APIBaseURL is the base URL of the remote session API.
	APIBaseURL string `yaml:"api_base_url"`
	// RequestTimeoutSeconds bounds each outbound API call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	// CooldownSeconds is the minimum interval between operation starts.
	CooldownSeconds int `yaml:"cooldown_seconds"`
	// SettleDelayMs defers guard release after a failed connect.
	SettleDelayMs int `yaml:"settle_delay_ms"`
	// EndAttempts bounds the disconnect retry loop.
	EndAttempts int `yaml:"end_attempts"`
	// EndRetryDelayMs is the pause between end attempts.
	EndRetryDelayMs int `yaml:"end_retry_delay_ms"`
	// ReconcileIntervalSeconds is the reconciliation poll interval.
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	// ProbeWorkers bounds concurrent latency probes.
	ProbeWorkers int `yaml:"probe_workers"`
	// ProbeTimeoutSeconds bounds each latency probe.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:               "http://localhost:8088",
		RequestTimeoutSeconds:    10,
		CooldownSeconds:          5,
		SettleDelayMs:            1000,
		EndAttempts:              3,
		EndRetryDelayMs:          500,
		ReconcileIntervalSeconds: 5,
		ProbeWorkers:             10,
		ProbeTimeoutSeconds:      5,
	}
}

// Load reads the configuration from path, or from the default location
// when path is empty. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the configuration to path, creating the directory if
// needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyDefaults fills unset or out-of-range fields with defaults.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.APIBaseURL == "" {
		c.APIBaseURL = def.APIBaseURL
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	if c.CooldownSeconds <= 0 {
		c.CooldownSeconds = def.CooldownSeconds
	}
	if c.SettleDelayMs < 0 {
		c.SettleDelayMs = def.SettleDelayMs
	}
	if c.EndAttempts <= 0 {
		c.EndAttempts = def.EndAttempts
	}
	if c.EndRetryDelayMs <= 0 {
		c.EndRetryDelayMs = def.EndRetryDelayMs
	}
	if c.ReconcileIntervalSeconds <= 0 {
		c.ReconcileIntervalSeconds = def.ReconcileIntervalSeconds
	}
	if c.ProbeWorkers <= 0 {
		c.ProbeWorkers = def.ProbeWorkers
	}
	if c.ProbeTimeoutSeconds <= 0 {
		c.ProbeTimeoutSeconds = def.ProbeTimeoutSeconds
	}
}

// RequestTimeout returns the request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Cooldown returns the cooldown window as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// SettleDelay returns the settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// EndRetryDelay returns the end retry delay as a duration.
func (c *Config) EndRetryDelay() time.Duration {
	return time.Duration(c.EndRetryDelayMs) * time.Millisecond
}

// ReconcileInterval returns the reconcile interval as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// ProbeTimeout returns the probe timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// defaultPath returns ~/.config/tunlink/config.yaml.
func defaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "tunlink", "config.yaml"), nil
}
