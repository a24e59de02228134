package dispatch

import (
	"context"
	"time"

	"github.com/smoyen/buildhook/internal/registry"
)

// GlobalConfig exposes the daemon-wide trigger settings the policy consults.
type GlobalConfig interface {
	IsAutoTriggerEnabledForAllJobs() bool
}

// BuildScheduler queues a build directly on the work queue. Fire-and-forget:
// the engine consumes nothing beyond the success of the call itself.
type BuildScheduler interface {
	ScheduleBuild(ctx context.Context, job *registry.Job, quietPeriod time.Duration, cause Cause) error
}

// PushTriggerRunner executes the push trigger for a job: poll the remote
// and queue a build when changes are found, or queue directly when polling
// is bypassed. Used by the global auto-trigger and by custom push triggers.
type PushTriggerRunner interface {
	Execute(ctx context.Context, job *registry.Job, event PushEvent, bypassPolling bool) error
}

// GlobalConfigFunc adapts a plain function to GlobalConfig.
type GlobalConfigFunc func() bool

func (f GlobalConfigFunc) IsAutoTriggerEnabledForAllJobs() bool { return f() }
