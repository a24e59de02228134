package config

import (
	"os"

	"github.com/smoyen/buildhook/internal/errors"
)

const sampleConfig = `# buildhook configuration
listen:
  webhook_addr: ":8080"
  admin_addr: ":9090"

webhook:
  path: /hooks/push

registry:
  path: jobs.yaml
  watch: true

dispatch:
  # Trigger every matched job, even without an explicit trigger.
  auto_trigger_all_jobs: false
  default_quiet_period: 5

queue:
  size: 100
  workers: 2
  # Retry transient build failures: fixed, linear or exponential backoff.
  retry_backoff: linear
  retry_initial_delay: 1s
  retry_max_delay: 30s
  max_retries: 2

# Persist dispatch and build events; empty path disables the store.
eventstore:
  path: ""

nats:
  enabled: false
  url: nats://localhost:4222
  subject: buildhook.dispatch
  timeout: 5s

logging:
  level: info
  format: text
`

const sampleRegistry = `# buildhook job registry
jobs:
  - name: example
    scm:
      kind: git
      remotes:
        - git@example.com:org/repo.git
    quiet_period: 5
    build_command: make build
    triggers:
      - kind: poll
`

// Init writes a commented sample configuration and registry file.
func Init(configPath, registryPath string, force bool) error {
	if err := writeSample(configPath, sampleConfig, force); err != nil {
		return err
	}
	return writeSample(registryPath, sampleRegistry, force)
}

func writeSample(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.ConfigError("file already exists, use --force to overwrite").
				WithContext("path", path).Build()
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "write sample file").
			WithContext("path", path).Build()
	}
	return nil
}
