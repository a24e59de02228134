package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/smoyen/buildhook/internal/gituri"
	"github.com/smoyen/buildhook/internal/identity"
	"github.com/smoyen/buildhook/internal/logfields"
	"github.com/smoyen/buildhook/internal/metrics"
	"github.com/smoyen/buildhook/internal/registry"
)

// Dispatcher runs the scan-match-decide pipeline for push events.
type Dispatcher struct {
	registry           registry.View
	global             GlobalConfig
	scheduler          BuildScheduler
	pushRunner         PushTriggerRunner
	recorder           metrics.Recorder
	logger             *slog.Logger
	defaultQuietPeriod time.Duration
}

// Options configures optional Dispatcher collaborators.
type Options struct {
	Recorder           metrics.Recorder
	Logger             *slog.Logger
	DefaultQuietPeriod time.Duration
}

// New constructs a Dispatcher. Registry, global config, scheduler, and the
// push-trigger runner are required.
func New(reg registry.View, global GlobalConfig, scheduler BuildScheduler, pushRunner PushTriggerRunner, opts Options) *Dispatcher {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultQuietPeriod <= 0 {
		opts.DefaultQuietPeriod = 5 * time.Second
	}
	return &Dispatcher{
		registry:           reg,
		global:             global,
		scheduler:          scheduler,
		pushRunner:         pushRunner,
		recorder:           opts.Recorder,
		logger:             opts.Logger,
		defaultQuietPeriod: opts.DefaultQuietPeriod,
	}
}

// Dispatch processes one push event against every job in the registry and
// returns the aggregated result. The scan runs under the elevated system
// identity so it sees jobs the (typically anonymous) webhook caller cannot;
// the elevation ends with the scan on every exit path.
//
// A failure during a single job's trigger execution propagates and aborts
// the remainder of the scan. An unreachable registry is recovered locally:
// it is logged and an empty result is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event PushEvent, bypassPolling bool) (*Result, error) {
	start := time.Now()
	d.recorder.IncEventsReceived()

	var result *Result
	err := identity.RunAs(ctx, identity.System(), func(ctx context.Context) error {
		d.logger.Debug("Scanning job registry",
			logfields.Identity(identity.FromContext(ctx).Name),
			logfields.EventURI(event.RepositoryURI.String()))
		r, err := d.scan(ctx, event, bypassPolling)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}

	d.recorder.ObserveDispatchDuration(time.Since(start))
	return result, nil
}

func (d *Dispatcher) scan(ctx context.Context, event PushEvent, bypassPolling bool) (*Result, error) {
	jobs, err := d.registry.AllJobs(ctx)
	if err != nil {
		// Callers never see a fatal failure for an unreachable registry.
		d.logger.Error("Job registry unavailable", logfields.Error(err))
		return &Result{}, nil
	}

	gitJobsFound := false
	matched := 0
	scanned := 0
	var outcomes []Outcome

	for _, job := range jobs {
		if !job.IsGit() {
			continue
		}
		gitJobsFound = true
		scanned++

		remote, ok := firstMatchingRemote(job, event.RepositoryURI)
		if !ok {
			continue
		}
		matched++

		outcome, err := d.decide(ctx, job, event, bypassPolling)
		if err != nil {
			return nil, err
		}
		d.recorder.IncOutcome(string(outcome.Kind))
		d.logger.Debug("Dispatch decision",
			logfields.JobName(job.Name),
			logfields.Remote(remote),
			logfields.Outcome(string(outcome.Kind)))
		outcomes = append(outcomes, outcome)
	}

	d.recorder.IncJobsScanned(scanned)
	d.recorder.IncRepositoryMatches(matched)

	return d.aggregate(event, gitJobsFound, matched, outcomes), nil
}

// firstMatchingRemote tests the job's configured remotes in order and stops
// at the first match; the rest are never evaluated for this dispatch.
// Malformed remotes are non-matches, not errors.
func firstMatchingRemote(job *registry.Job, eventURI gituri.URI) (string, bool) {
	for _, remote := range job.SCM.Remotes {
		u, err := gituri.Parse(remote)
		if err != nil {
			continue
		}
		if gituri.Same(u, eventURI) {
			return remote, true
		}
	}
	return "", false
}
