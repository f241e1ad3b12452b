// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ollachat.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides, loaded once at startup from ~/.ollachat/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/ollachat/internal/ollama"
	"github.com/jeranaias/ollachat/internal/storage"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ollachat configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Storage settings
	Storage StorageConfig `toml:"storage"`

	// UI settings
	UI UIConfig `toml:"ui"`
}

// ServerConfig describes the inference server to talk to.
type ServerConfig struct {
	// URL is the base URL of the Ollama server.
	URL string `toml:"url"`
	// DefaultModel is used when the persisted settings name no model.
	DefaultModel string `toml:"default_model"`
	// TimeoutSecs bounds non-streaming requests (version, tags, summaries).
	TimeoutSecs int `toml:"timeout_secs"`
	// StallTimeoutSecs aborts a stream that delivers no frame for this long.
	StallTimeoutSecs int `toml:"stall_timeout_secs"`
}

// StorageConfig describes where and how much conversation data is kept.
type StorageConfig struct {
	// Dir is the data directory (empty = ~/.ollachat/data).
	Dir string `toml:"dir"`
	// MaxConversations caps how many conversations are persisted.
	MaxConversations int `toml:"max_conversations"`
	// MaxMessages caps messages per conversation on save.
	MaxMessages int `toml:"max_messages"`
	// MaxSizeMB caps the serialized snapshot size in MiB.
	MaxSizeMB int `toml:"max_size_mb"`
}

// UIConfig contains presentation preferences.
type UIConfig struct {
	// Theme is "dark" or "light".
	Theme string `toml:"theme"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:              "http://127.0.0.1:11434",
			DefaultModel:     "",
			TimeoutSecs:      30,
			StallTimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Dir:              "",
			MaxConversations: 100,
			MaxMessages:      100,
			MaxSizeMB:        10,
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ollachat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ollachat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory for conversation data, honoring the
// configured override.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from the given TOML file. A missing file
// is not an error; a malformed one is.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero-value fields with their defaults, so a sparse
// config file does not zero out unrelated settings.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.TimeoutSecs <= 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if c.Server.StallTimeoutSecs <= 0 {
		c.Server.StallTimeoutSecs = defaults.Server.StallTimeoutSecs
	}

	if c.Storage.MaxConversations <= 0 {
		c.Storage.MaxConversations = defaults.Storage.MaxConversations
	}
	if c.Storage.MaxMessages <= 0 {
		c.Storage.MaxMessages = defaults.Storage.MaxMessages
	}
	if c.Storage.MaxSizeMB <= 0 {
		c.Storage.MaxSizeMB = defaults.Storage.MaxSizeMB
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies OLLACHAT_* environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("OLLACHAT_URL"); url != "" {
		c.Server.URL = url
	}
	if model := os.Getenv("OLLACHAT_MODEL"); model != "" {
		c.Server.DefaultModel = model
	}
	if dir := os.Getenv("OLLACHAT_DATA_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if theme := os.Getenv("OLLACHAT_THEME"); theme != "" {
		c.UI.Theme = strings.ToLower(theme)
	}
	if timeout := os.Getenv("OLLACHAT_TIMEOUT_SECS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			c.Server.TimeoutSecs = secs
		}
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to the given path as TOML.
// SECURITY: config files are created 0600 (owner read/write only).
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# ollachat configuration file")
	fmt.Fprintln(file, "# Generated by ollachat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", c.Server.URL),
		})
	}
	if c.Server.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: "must be positive",
		})
	}
	if c.Storage.MaxConversations <= 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_conversations",
			Message: "must be positive",
		})
	}
	if theme := strings.ToLower(c.UI.Theme); theme != "dark" && theme != "light" {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme %q, must be dark or light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// ClientConfig translates the server section into an Ollama client config.
func (c *Config) ClientConfig() *ollama.ClientConfig {
	return &ollama.ClientConfig{
		BaseURL:      c.Server.URL,
		Timeout:      time.Duration(c.Server.TimeoutSecs) * time.Second,
		DefaultModel: c.Server.DefaultModel,
	}
}

// StallTimeout returns the streaming stall bound as a duration.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Server.StallTimeoutSecs) * time.Second
}

// StorageLimits translates the storage section into persistence limits.
func (c *Config) StorageLimits() storage.Limits {
	return storage.Limits{
		MaxConversations: c.Storage.MaxConversations,
		MaxMessages:      c.Storage.MaxMessages,
		MaxBytes:         c.Storage.MaxSizeMB << 20,
	}
}
