// Package config provides configuration management for taskdeck.
//
// Configuration is loaded from multiple sources with the following precedence
// (highest to lowest):
//  1. CLI flags (set via SetOverride)
//  2. TASKDECK_* environment variables (e.g. TASKDECK_API_BASE_URL)
//  3. Project config: ./taskdeck.yaml or ./.taskdeck/config.yaml
//  4. Global config: ~/.config/taskdeck/config.yaml
//  5. Built-in defaults
//
// The package uses Viper for configuration merging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by the loader.
const EnvPrefix = "TASKDECK"

// Config represents the taskdeck.yaml configuration file.
type Config struct {
	// Version is the configuration schema version (currently "1")
	Version string `yaml:"version" mapstructure:"version" validate:"required,eq=1"`

	// UserID scopes the snapshot, the event stream and created tasks
	UserID string `yaml:"user_id" mapstructure:"user_id" validate:"required"`

	// API configures the REST backend
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Stream configures the WebSocket event stream
	Stream StreamConfig `yaml:"stream" mapstructure:"stream"`

	// Router configures command routing
	Router RouterConfig `yaml:"router" mapstructure:"router"`

	// Engine configures the task table
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Log configures diagnostics output
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// APIConfig specifies how to reach the REST backend.
type APIConfig struct {
	// BaseURL is the backend address (e.g., "http://localhost:8000")
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// Timeout bounds every REST request
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// StreamConfig specifies the event stream connection.
type StreamConfig struct {
	// URL is the stream base address. Empty derives it from api.base_url.
	URL string `yaml:"url,omitempty" mapstructure:"url" validate:"omitempty,url"`

	// ConnectDelay is waited before the first connection attempt
	ConnectDelay time.Duration `yaml:"connect_delay" mapstructure:"connect_delay" validate:"gte=0"`

	// Reconnect enables reconnecting with exponential backoff after a drop
	Reconnect bool `yaml:"reconnect" mapstructure:"reconnect"`

	// ReconnectMin is the first backoff interval
	ReconnectMin time.Duration `yaml:"reconnect_min" mapstructure:"reconnect_min" validate:"gt=0"`

	// ReconnectMax caps the backoff interval
	ReconnectMax time.Duration `yaml:"reconnect_max" mapstructure:"reconnect_max" validate:"gtefield=ReconnectMin"`
}

// RouterConfig specifies command routing.
type RouterConfig struct {
	// Orchestrator is the nickname of the default worker. Empty uses the
	// worker flagged as orchestrator in the roster.
	Orchestrator string `yaml:"orchestrator,omitempty" mapstructure:"orchestrator"`
}

// EngineConfig specifies task table settings.
type EngineConfig struct {
	// TombstoneCapacity is how many deleted task ids are remembered
	TombstoneCapacity int `yaml:"tombstone_capacity" mapstructure:"tombstone_capacity" validate:"gte=1,lte=1000000"`
}

// LogConfig specifies logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`

	// File receives log output. Empty means stderr for headless commands and
	// a file in the temp directory for the dashboard.
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// StreamURL returns the stream base address.
func (c *Config) StreamURL() string {
	if c.Stream.URL != "" {
		return c.Stream.URL
	}
	return c.API.BaseURL
}

// ValidationError represents a configuration validation error with field details.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Message)
	}
	return strings.Join(msgs, "; ")
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v         *viper.Viper
	validator *validator.Validate
	overrides map[string]interface{}
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:         v,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		overrides: make(map[string]interface{}),
	}
}

// SetOverride sets a CLI override value that takes highest precedence.
// Use dot notation for nested keys (e.g., "api.base_url").
func (l *Loader) SetOverride(key string, value interface{}) {
	l.overrides[key] = value
}

// Load reads configuration from all sources and returns the merged result.
// It searches for config files in the following order:
//  1. ./taskdeck.yaml
//  2. ./.taskdeck/config.yaml
//  3. ~/.config/taskdeck/config.yaml
//
// All found configs are merged with CLI overrides taking highest precedence.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	// Load global config (~/.config/taskdeck/config.yaml)
	globalPath := l.globalConfigPath()
	if globalPath != "" && fileExists(globalPath) {
		if err := l.loadConfigFile(globalPath); err != nil {
			return nil, fmt.Errorf("failed to load global config %s: %w", globalPath, err)
		}
	}

	// Load project config (./taskdeck.yaml or ./.taskdeck/config.yaml)
	projectPath := l.findProjectConfig()
	if projectPath != "" {
		if err := l.loadConfigFile(projectPath); err != nil {
			return nil, fmt.Errorf("failed to load project config %s: %w", projectPath, err)
		}
	}

	return l.finish()
}

// LoadFromPath loads configuration from a specific file path on top of the
// defaults. This is used when --config is given.
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	l.setDefaults()

	if err := l.loadConfigFile(path); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	return l.finish()
}

func (l *Loader) finish() (*Config, error) {
	// Apply CLI overrides (highest precedence)
	for key, value := range l.overrides {
		l.v.Set(key, value)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against the schema.
// Returns ValidationErrors with detailed information about any issues.
func (l *Loader) Validate(cfg *Config) error {
	var errs ValidationErrors

	err := l.validator.Struct(cfg)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				errs = append(errs, ValidationError{
					Field:   e.Namespace(),
					Tag:     e.Tag(),
					Value:   e.Value(),
					Message: formatValidationError(e),
				})
			}
		} else {
			return fmt.Errorf("validation error: %w", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("version", defaults.Version)
	l.v.SetDefault("user_id", defaults.UserID)
	l.v.SetDefault("api.base_url", defaults.API.BaseURL)
	l.v.SetDefault("api.timeout", defaults.API.Timeout)
	l.v.SetDefault("stream.url", defaults.Stream.URL)
	l.v.SetDefault("stream.connect_delay", defaults.Stream.ConnectDelay)
	l.v.SetDefault("stream.reconnect", defaults.Stream.Reconnect)
	l.v.SetDefault("stream.reconnect_min", defaults.Stream.ReconnectMin)
	l.v.SetDefault("stream.reconnect_max", defaults.Stream.ReconnectMax)
	l.v.SetDefault("router.orchestrator", defaults.Router.Orchestrator)
	l.v.SetDefault("engine.tombstone_capacity", defaults.Engine.TombstoneCapacity)
	l.v.SetDefault("log.level", defaults.Log.Level)
	l.v.SetDefault("log.file", defaults.Log.File)
}

func (l *Loader) loadConfigFile(path string) error {
	l.v.SetConfigFile(path)
	return l.v.MergeInConfig()
}

func (l *Loader) globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "taskdeck", "config.yaml")
}

func (l *Loader) findProjectConfig() string {
	// Check ./taskdeck.yaml first
	if fileExists("taskdeck.yaml") {
		return "taskdeck.yaml"
	}

	// Check ./.taskdeck/config.yaml
	altPath := filepath.Join(".taskdeck", "config.yaml")
	if fileExists(altPath) {
		return altPath
	}

	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func formatValidationError(e validator.FieldError) string {
	field := e.Namespace()
	// Remove the "Config." prefix for cleaner messages
	field = strings.TrimPrefix(field, "Config.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "eq":
		return fmt.Sprintf("'%s' must be '%s' (got '%v')", field, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("'%s' must be a URL (got '%v')", field, e.Value())
	case "oneof":
		return fmt.Sprintf("'%s' must be one of [%s] (got '%v')", field, e.Param(), e.Value())
	case "gt":
		return fmt.Sprintf("'%s' must be greater than %s (got '%v')", field, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("'%s' must be at least %s (got '%v')", field, e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("'%s' must be at most %s (got '%v')", field, e.Param(), e.Value())
	case "gtefield":
		return fmt.Sprintf("'%s' must not be less than '%s' (got '%v')", field, e.Param(), e.Value())
	default:
		return fmt.Sprintf("'%s' failed validation '%s'", field, e.Tag())
	}
}

// DefaultConfig returns a new Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		UserID:  "local",
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			ConnectDelay: 150 * time.Millisecond,
			Reconnect:    true,
			ReconnectMin: 500 * time.Millisecond,
			ReconnectMax: 30 * time.Second,
		},
		Engine: EngineConfig{
			TombstoneCapacity: 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// document mirrors Config for writing, with durations as strings so the file
// reads "30s" rather than nanoseconds.
type document struct {
	Version string `yaml:"version"`
	UserID  string `yaml:"user_id"`
	API     struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Stream struct {
		URL          string `yaml:"url,omitempty"`
		ConnectDelay string `yaml:"connect_delay"`
		Reconnect    bool   `yaml:"reconnect"`
		ReconnectMin string `yaml:"reconnect_min"`
		ReconnectMax string `yaml:"reconnect_max"`
	} `yaml:"stream"`
	Router RouterConfig `yaml:"router"`
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
}

func toDocument(cfg *Config) document {
	var d document
	d.Version = cfg.Version
	d.UserID = cfg.UserID
	d.API.BaseURL = cfg.API.BaseURL
	d.API.Timeout = cfg.API.Timeout.String()
	d.Stream.URL = cfg.Stream.URL
	d.Stream.ConnectDelay = cfg.Stream.ConnectDelay.String()
	d.Stream.Reconnect = cfg.Stream.Reconnect
	d.Stream.ReconnectMin = cfg.Stream.ReconnectMin.String()
	d.Stream.ReconnectMax = cfg.Stream.ReconnectMax.String()
	d.Router = cfg.Router
	d.Engine = cfg.Engine
	d.Log = cfg.Log
	return d
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	return Write(cfg, path)
}

// Write writes the configuration to the specified path.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(toDocument(cfg))
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0600)
}

// Load is a convenience function that creates a Loader and loads the config.
// For more control over loading behavior, use NewLoader() directly.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// Exists checks if a configuration file exists at the given path.
func Exists(path string) bool {
	return fileExists(path)
}

// GlobalConfigPath returns the path to the global configuration file.
func GlobalConfigPath() string {
	return NewLoader().globalConfigPath()
}

// FindProjectConfig returns the path to the project configuration file,
// or an empty string if no project config is found.
func FindProjectConfig() string {
	return NewLoader().findProjectConfig()
}
