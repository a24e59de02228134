package dispatch

import (
	"context"
	"time"

	"github.com/smoyen/buildhook/internal/registry"
)

// decide picks exactly one outcome for a matched job, evaluating the
// competing trigger strategies in fixed precedence order. Each step is
// terminal: the first satisfied strategy wins and no other fires.
func (d *Dispatcher) decide(ctx context.Context, job *registry.Job, event PushEvent, bypassPolling bool) (Outcome, error) {
	// Guards run before any strategy is considered.
	if job.Disabled {
		return Outcome{JobName: job.Name, Kind: OutcomeSkipped, Reason: SkipJobDisabled}, nil
	}
	if job.SCM.IgnoreNotifyPush {
		return Outcome{JobName: job.Name, Kind: OutcomeSkipped, Reason: SkipHooksIgnored}, nil
	}

	// 1. Global auto-trigger: fires for every job when enabled daemon-wide
	// (or when the job opted in itself), unless the job's polling trigger
	// explicitly opted out of hook-driven builds.
	if d.global.IsAutoTriggerEnabledForAllJobs() || job.FindTrigger(registry.TriggerGlobalAuto) != nil {
		poll := job.FindTrigger(registry.TriggerPoll)
		if poll == nil || !poll.IgnoreHooks {
			if err := d.pushRunner.Execute(ctx, job, event, bypassPolling); err != nil {
				return Outcome{}, err
			}
			kind := OutcomeScheduledViaPoll
			if bypassPolling {
				kind = OutcomeScheduledImmediate
			}
			return Outcome{JobName: job.Name, Kind: kind}, nil
		}
	}

	// 2. Explicit polling trigger: queue a build directly, no poll step.
	if poll := job.FindTrigger(registry.TriggerPoll); poll != nil && !poll.IgnoreHooks {
		cause := Cause{
			Commit:        event.CommitID,
			RepositoryURI: event.RepositoryURI.String(),
			Trigger:       registry.TriggerPoll,
		}
		if err := d.scheduler.ScheduleBuild(ctx, job, d.quietPeriodFor(job), cause); err != nil {
			return Outcome{}, err
		}
		return Outcome{JobName: job.Name, Kind: OutcomeScheduledImmediate}, nil
	}

	// 3. Custom push trigger: delegate to its own execution.
	if push := job.FindTrigger(registry.TriggerPush); push != nil {
		if err := d.pushRunner.Execute(ctx, job, event, bypassPolling); err != nil {
			return Outcome{}, err
		}
		return Outcome{JobName: job.Name, Kind: OutcomeCustomHandled, bypassPolling: bypassPolling}, nil
	}

	// 4. Nothing applies.
	return Outcome{JobName: job.Name, Kind: OutcomeSkipped, Reason: SkipNoTriggerConfigured}, nil
}

// quietPeriodFor returns the job's configured quiet period, falling back to
// the daemon default.
func (d *Dispatcher) quietPeriodFor(job *registry.Job) time.Duration {
	if job.QuietPeriodSeconds > 0 {
		return time.Duration(job.QuietPeriodSeconds) * time.Second
	}
	return d.defaultQuietPeriod
}
