package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	inboundhttp "github.com/sophialabs/mockexpect/internal/infrastructure/inbound/http"
)

// Config holds all configurable parameters for the application. Durations
// in a config file are Go duration strings ("250ms", "10s").
type Config struct {
	RootDir   string `yaml:"root_dir"`
	Port      int    `yaml:"port"`
	TraceSize int    `yaml:"trace_size"`
	LogLevel  string `yaml:"log_level"`

	LogBufferSize  int    `yaml:"log_buffer_size"`
	LogFile        string `yaml:"log_file"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	RedisMaxLen    int64  `yaml:"redis_max_len"`

	MaxRawBodyBytes     int64         `yaml:"max_raw_body_bytes"`
	ActionTimeout       time.Duration `yaml:"action_timeout"`
	UnmatchedStatus     int           `yaml:"unmatched_status"`
	DefaultProject      string        `yaml:"default_project"`
	CapabilityCacheSize int           `yaml:"capability_cache_size"`

	WatcherDebounce time.Duration `yaml:"watcher_debounce"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	DefaultEngine string `yaml:"default_engine"` // "" = static, "expr", "jinja2"
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RootDir:   "./expectations",
		Port:      8080,
		TraceSize: 200,
		LogLevel:  "debug",

		LogBufferSize:  1000,
		RedisKeyPrefix: "mockexpect:",
		RedisMaxLen:    10000,

		MaxRawBodyBytes:     inboundhttp.DefaultMaxRawBodyBytes,
		ActionTimeout:       30 * time.Second,
		UnmatchedStatus:     404,
		CapabilityCacheSize: 1024,

		WatcherDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys absent from
// the file keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.RootDir == "" {
		errs = append(errs, errors.New("root_dir is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.TraceSize <= 0 {
		errs = append(errs, fmt.Errorf("trace_size must be positive, got %d", c.TraceSize))
	}
	if c.LogBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("log_buffer_size must be positive, got %d", c.LogBufferSize))
	}
	if c.MaxRawBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_raw_body_bytes must be positive, got %d", c.MaxRawBodyBytes))
	}
	if c.ActionTimeout < 0 {
		errs = append(errs, fmt.Errorf("action_timeout must be >= 0, got %s", c.ActionTimeout))
	}
	if c.UnmatchedStatus < 100 || c.UnmatchedStatus > 599 {
		errs = append(errs, fmt.Errorf("unmatched_status %d is not an HTTP status", c.UnmatchedStatus))
	}
	switch c.DefaultEngine {
	case "", "expr", "jinja2":
	default:
		errs = append(errs, fmt.Errorf("default_engine %q must be expr or jinja2", c.DefaultEngine))
	}
	return errors.Join(errs...)
}
