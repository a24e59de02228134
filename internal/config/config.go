// Package config loads and validates the buildhook daemon configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smoyen/buildhook/internal/errors"
)

// Config is the application configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Registry   RegistryConfig   `yaml:"registry"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Queue      QueueConfig      `yaml:"queue"`
	EventStore EventStoreConfig `yaml:"eventstore"`
	NATS       NATSConfig       `yaml:"nats"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ListenConfig holds the HTTP listen addresses.
type ListenConfig struct {
	WebhookAddr string `yaml:"webhook_addr"`
	AdminAddr   string `yaml:"admin_addr"`
}

// WebhookConfig configures the push webhook endpoint.
type WebhookConfig struct {
	Path string `yaml:"path"`
}

// RegistryConfig points at the job registry file.
type RegistryConfig struct {
	Path string `yaml:"path"`
	// Watch enables hot reload of the registry file.
	Watch bool `yaml:"watch"`
}

// DispatchConfig holds trigger-decision settings.
type DispatchConfig struct {
	// AutoTriggerAllJobs enables the global auto-trigger: every matched job
	// is triggered even without an explicit trigger configuration, unless
	// its polling trigger opted out of hooks.
	AutoTriggerAllJobs bool `yaml:"auto_trigger_all_jobs"`
	// DefaultQuietPeriodSeconds applies to jobs without their own quiet period.
	DefaultQuietPeriodSeconds int `yaml:"default_quiet_period"`
}

// RetryBackoffMode selects the delay growth for build retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// QueueConfig sizes the build queue and its retry behavior for transient
// build failures.
type QueueConfig struct {
	Size    int `yaml:"size"`
	Workers int `yaml:"workers"`

	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay time.Duration    `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration    `yaml:"retry_max_delay"`
	MaxRetries        int              `yaml:"max_retries"`
}

// EventStoreConfig configures dispatch event persistence. An empty path
// disables the store.
type EventStoreConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig configures optional dispatch-outcome announcements.
type NATSConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// IsAutoTriggerEnabledForAllJobs reports the global auto-trigger flag.
func (c *Config) IsAutoTriggerEnabledForAllJobs() bool {
	return c.Dispatch.AutoTriggerAllJobs
}

// Load reads, layers, and validates configuration: defaults, then the YAML
// file, then environment overrides (with .env files loaded first).
func Load(path string) (*Config, error) {
	LoadEnvFiles()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "read config file").
			WithContext("path", path).Build()
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "parse config file").
			WithContext("path", path).Build()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			WebhookAddr: ":8080",
			AdminAddr:   ":9090",
		},
		Webhook: WebhookConfig{
			Path: "/hooks/push",
		},
		Registry: RegistryConfig{
			Path:  "jobs.yaml",
			Watch: true,
		},
		Dispatch: DispatchConfig{
			DefaultQuietPeriodSeconds: 5,
		},
		Queue: QueueConfig{
			Size:              100,
			Workers:           2,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: time.Second,
			RetryMaxDelay:     30 * time.Second,
			MaxRetries:        2,
		},
		NATS: NATSConfig{
			Subject: "buildhook.dispatch",
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Registry.Path == "" {
		return errors.ValidationError("registry path is required").Build()
	}
	if c.Queue.Size <= 0 {
		return errors.ValidationError("queue size must be positive").
			WithContext("size", c.Queue.Size).Build()
	}
	if c.Queue.Workers <= 0 {
		return errors.ValidationError("queue workers must be positive").
			WithContext("workers", c.Queue.Workers).Build()
	}
	switch c.Queue.RetryBackoff {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
	default:
		return errors.ValidationError("unknown retry backoff mode").
			WithContext("mode", string(c.Queue.RetryBackoff)).Build()
	}
	if c.Dispatch.DefaultQuietPeriodSeconds < 0 {
		return errors.ValidationError("default quiet period must not be negative").Build()
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.ValidationError("nats url is required when nats is enabled").Build()
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.ValidationError("unknown log level").
			WithContext("level", c.Logging.Level).Build()
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.ValidationError("unknown log format").
			WithContext("format", c.Logging.Format).Build()
	}
	return nil
}
