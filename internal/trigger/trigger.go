// Package trigger runs a job's push trigger: poll the remote for changes and
// queue a build when the heads moved, or queue directly when polling is
// bypassed.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smoyen/buildhook/internal/dispatch"
	"github.com/smoyen/buildhook/internal/logfields"
	"github.com/smoyen/buildhook/internal/registry"
)

// PushTrigger implements dispatch.PushTriggerRunner. The poll-then-schedule
// path runs asynchronously; the dispatch response does not wait for the poll
// to finish.
type PushTrigger struct {
	scheduler          dispatch.BuildScheduler
	poller             RemotePoller
	logger             *slog.Logger
	defaultQuietPeriod time.Duration
	pollTimeout        time.Duration

	wg sync.WaitGroup
}

// Options configures optional PushTrigger collaborators.
type Options struct {
	Logger             *slog.Logger
	DefaultQuietPeriod time.Duration
	PollTimeout        time.Duration
}

func New(scheduler dispatch.BuildScheduler, poller RemotePoller, opts Options) *PushTrigger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultQuietPeriod <= 0 {
		opts.DefaultQuietPeriod = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60 * time.Second
	}
	return &PushTrigger{
		scheduler:          scheduler,
		poller:             poller,
		logger:             opts.Logger,
		defaultQuietPeriod: opts.DefaultQuietPeriod,
		pollTimeout:        opts.PollTimeout,
	}
}

// Execute runs the push trigger for one matched job. With bypassPolling the
// build is queued directly; otherwise a background poll decides whether a
// build is warranted. Only the direct path can fail synchronously.
func (t *PushTrigger) Execute(ctx context.Context, job *registry.Job, event dispatch.PushEvent, bypassPolling bool) error {
	cause := dispatch.Cause{
		Commit:        event.CommitID,
		RepositoryURI: event.RepositoryURI.String(),
		Trigger:       registry.TriggerPush,
	}

	if bypassPolling {
		return t.scheduler.ScheduleBuild(ctx, job, t.quietPeriodFor(job), cause)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.pollAndSchedule(job, cause)
	}()
	return nil
}

// Wait blocks until all in-flight polls finish. Called on shutdown.
func (t *PushTrigger) Wait() {
	t.wg.Wait()
}

func (t *PushTrigger) pollAndSchedule(job *registry.Job, cause dispatch.Cause) {
	ctx, cancel := context.WithTimeout(context.Background(), t.pollTimeout)
	defer cancel()

	changed, err := t.poller.Poll(ctx, job)
	if err != nil {
		t.logger.Error("Remote poll failed",
			logfields.JobName(job.Name),
			logfields.Error(err))
		return
	}
	if !changed {
		t.logger.Debug("Remote unchanged, no build queued", logfields.JobName(job.Name))
		return
	}

	if err := t.scheduler.ScheduleBuild(ctx, job, t.quietPeriodFor(job), cause); err != nil {
		t.logger.Error("Failed to schedule build after poll",
			logfields.JobName(job.Name),
			logfields.Error(err))
	}
}

func (t *PushTrigger) quietPeriodFor(job *registry.Job) time.Duration {
	if job.QuietPeriodSeconds > 0 {
		return time.Duration(job.QuietPeriodSeconds) * time.Second
	}
	return t.defaultQuietPeriod
}
