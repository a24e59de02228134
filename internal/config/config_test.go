package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoyen/buildhook/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "registry:\n  path: jobs.yaml\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen.WebhookAddr)
	require.Equal(t, "/hooks/push", cfg.Webhook.Path)
	require.Equal(t, 100, cfg.Queue.Size)
	require.Equal(t, 2, cfg.Queue.Workers)
	require.Equal(t, 5, cfg.Dispatch.DefaultQuietPeriodSeconds)
	require.Equal(t, RetryBackoffLinear, cfg.Queue.RetryBackoff)
	require.Equal(t, 2, cfg.Queue.MaxRetries)
	require.Equal(t, "buildhook.dispatch", cfg.NATS.Subject)
	require.False(t, cfg.IsAutoTriggerEnabledForAllJobs())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen:
  webhook_addr: ":7070"
dispatch:
  auto_trigger_all_jobs: true
  default_quiet_period: 10
queue:
  size: 5
  workers: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Listen.WebhookAddr)
	require.True(t, cfg.IsAutoTriggerEnabledForAllJobs())
	require.Equal(t, 10, cfg.Dispatch.DefaultQuietPeriodSeconds)
	require.Equal(t, 5, cfg.Queue.Size)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BUILDHOOK_WEBHOOK_ADDR", ":6060")
	t.Setenv("BUILDHOOK_AUTO_TRIGGER_ALL_JOBS", "true")

	path := writeConfig(t, "listen:\n  webhook_addr: \":7070\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":6060", cfg.Listen.WebhookAddr)
	require.True(t, cfg.Dispatch.AutoTriggerAllJobs)
}

func TestLoad_DotEnvFileFeedsOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BUILDHOOK_ADMIN_ADDR=:5050\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("BUILDHOOK_ADMIN_ADDR") })

	path := writeConfig(t, "registry:\n  path: jobs.yaml\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":5050", cfg.Listen.AdminAddr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty registry path", func(c *Config) { c.Registry.Path = "" }},
		{"zero queue size", func(c *Config) { c.Queue.Size = 0 }},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"bad retry backoff", func(c *Config) { c.Queue.RetryBackoff = "quadratic" }},
		{"negative quiet period", func(c *Config) { c.Dispatch.DefaultQuietPeriodSeconds = -1 }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, Default().Validate())
}
