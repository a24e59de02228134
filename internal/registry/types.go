// Package registry defines the build-job registry view the dispatch engine
// scans, plus a YAML file-backed implementation with hot reload.
package registry

import (
	"context"
	"time"
)

// SCMKind identifies the source-control kind of a job's source configuration.
type SCMKind string

const (
	// SCMGit is the only kind the dispatch engine understands.
	SCMGit SCMKind = "git"
	// SCMNone marks jobs without source control (manual-only jobs).
	SCMNone SCMKind = "none"
)

// TriggerKind identifies one of the closed set of trigger strategies a job
// may configure. A job has zero or one trigger of each kind.
type TriggerKind string

const (
	// TriggerGlobalAuto marks a job as participating in the global
	// auto-trigger, when the daemon enables it for all jobs.
	TriggerGlobalAuto TriggerKind = "global_auto"
	// TriggerPoll is the built-in polling trigger: a push queues a build
	// directly, skipping the poll step.
	TriggerPoll TriggerKind = "poll"
	// TriggerPush is the custom push trigger: a push delegates to the
	// trigger's own execution (poll the remote, then queue).
	TriggerPush TriggerKind = "push"
)

// Trigger is one configured trigger strategy on a job.
type Trigger struct {
	Kind TriggerKind `yaml:"kind"`
	// IgnoreHooks opts this trigger out of hook-driven processing; the job
	// then relies on scheduled polling instead.
	IgnoreHooks bool `yaml:"ignore_hooks,omitempty"`
	// PollInterval drives scheduled polling for poll triggers that ignore
	// hooks. Zero disables scheduled polling.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// SCMConfig is a job's source configuration.
type SCMConfig struct {
	Kind    SCMKind  `yaml:"kind"`
	Remotes []string `yaml:"remotes,omitempty"`
	// IgnoreNotifyPush opts the configured remotes out of push-notification
	// handling entirely, regardless of trigger configuration.
	IgnoreNotifyPush bool `yaml:"ignore_notify_push,omitempty"`
}

// Job is a point-in-time view of one registry entry. The dispatch engine
// only reads it; no cross-job atomicity is assumed.
type Job struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled,omitempty"`
	// Private jobs are only visible to the elevated system identity.
	Private bool      `yaml:"private,omitempty"`
	SCM     SCMConfig `yaml:"scm"`
	// QuietPeriodSeconds delays the start of a scheduled build to allow
	// push batching.
	QuietPeriodSeconds int       `yaml:"quiet_period,omitempty"`
	BuildCommand       string    `yaml:"build_command,omitempty"`
	Triggers           []Trigger `yaml:"triggers,omitempty"`
}

// FindTrigger returns the job's trigger of the given kind, or nil.
func (j *Job) FindTrigger(kind TriggerKind) *Trigger {
	for i := range j.Triggers {
		if j.Triggers[i].Kind == kind {
			return &j.Triggers[i]
		}
	}
	return nil
}

// IsGit reports whether the job's source configuration is the tracked kind.
func (j *Job) IsGit() bool {
	return j.SCM.Kind == SCMGit
}

// View is the read-only job registry the dispatch engine scans.
// Implementations filter by the identity carried in ctx.
type View interface {
	AllJobs(ctx context.Context) ([]*Job, error)
}
