// Package config loads ccdb settings from .ccdb.yaml, CCDB_* environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel validation errors.
var (
	ErrEmptyDatabase      = errors.New("database path must not be empty")
	ErrInvalidStoreFormat = errors.New("store format must be json or yaml")
	ErrInvalidLogLevel    = errors.New("log level must be debug, info, warn or error")
	ErrInvalidDebounce    = errors.New("watch debounce must be positive")
)

var (
	validStoreFormats = []string{"json", "yaml"}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
)

// Config holds all ccdb settings.
type Config struct {
	Database      string          `mapstructure:"database"`
	Project       string          `mapstructure:"project"`
	Configuration string          `mapstructure:"configuration"`
	Store         StoreConfig     `mapstructure:"store"`
	Detect        DetectConfig    `mapstructure:"detect"`
	Log           LogConfig       `mapstructure:"log"`
	Watch         WatchConfig     `mapstructure:"watch"`
	Telemetry     TelemetryConfig `mapstructure:"telemetry"`
}

// StoreConfig locates the change-timestamp store.
type StoreConfig struct {
	// Dir is the store directory. Empty means the per-user state directory.
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// DetectConfig tunes toolchain detection.
type DetectConfig struct {
	// Strict tokenizes command lines with shell quoting rules.
	Strict bool `mapstructure:"strict"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// WatchConfig tunes the watch loop.
type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// TelemetryConfig enables OTLP export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	Environment  string `mapstructure:"environment"`
}

// Validate checks the loaded values. Empty enumerations fall back to defaults
// at the call sites, so only explicit bad values fail. The debounce has a
// default and must stay positive.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return ErrEmptyDatabase
	}

	if c.Store.Format != "" && !oneOf(c.Store.Format, validStoreFormats) {
		return fmt.Errorf("%w: %q", ErrInvalidStoreFormat, c.Store.Format)
	}

	if c.Log.Level != "" && !oneOf(strings.ToLower(c.Log.Level), validLogLevels) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, c.Watch.Debounce)
	}

	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}

	return false
}
