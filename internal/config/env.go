package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env and .env.local if present. Existing process
// environment variables are never overwritten.
func LoadEnvFiles() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// applyEnvOverrides layers BUILDHOOK_* environment variables over the file
// configuration. Unset variables leave the file values untouched.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Listen.WebhookAddr, "BUILDHOOK_WEBHOOK_ADDR")
	setString(&cfg.Listen.AdminAddr, "BUILDHOOK_ADMIN_ADDR")
	setString(&cfg.Webhook.Path, "BUILDHOOK_WEBHOOK_PATH")
	setString(&cfg.Registry.Path, "BUILDHOOK_REGISTRY")
	setBool(&cfg.Dispatch.AutoTriggerAllJobs, "BUILDHOOK_AUTO_TRIGGER_ALL_JOBS")
	setString(&cfg.EventStore.Path, "BUILDHOOK_EVENTSTORE")
	setBool(&cfg.NATS.Enabled, "BUILDHOOK_NATS_ENABLED")
	setString(&cfg.NATS.URL, "BUILDHOOK_NATS_URL")
	setString(&cfg.NATS.Subject, "BUILDHOOK_NATS_SUBJECT")
	setString(&cfg.Logging.Level, "BUILDHOOK_LOG_LEVEL")
	setString(&cfg.Logging.Format, "BUILDHOOK_LOG_FORMAT")
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func setBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*target = parsed
		}
	}
}
