package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/smoyen/buildhook/internal/dispatch"
	apperrors "github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/logfields"
	"github.com/smoyen/buildhook/internal/registry"
	"github.com/smoyen/buildhook/internal/trigger"
)

// Scheduler wraps gocron for jobs that opted out of hook-driven builds: their
// polling triggers run on a fixed interval instead. SyncJobs rebuilds the
// schedule whenever the registry reloads.
type Scheduler struct {
	scheduler gocron.Scheduler
	builds    dispatch.BuildScheduler
	poller    trigger.RemotePoller
	logger    *slog.Logger

	mu   sync.Mutex
	jobs map[string]gocron.Job // registry job name -> gocron job
}

// NewScheduler creates a scheduler instance.
func NewScheduler(builds dispatch.BuildScheduler, poller trigger.RemotePoller, logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.CategoryDaemon, "create scheduler").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		scheduler: s,
		builds:    builds,
		poller:    poller,
		logger:    logger,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	s.logger.Info("Starting poll scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	s.logger.Info("Stopping poll scheduler")
	return s.scheduler.Shutdown()
}

// SyncJobs replaces the scheduled polls with one per job that carries a
// hook-ignoring poll trigger with a positive interval.
func (s *Scheduler) SyncJobs(jobs []*registry.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, gj := range s.jobs {
		if err := s.scheduler.RemoveJob(gj.ID()); err != nil {
			s.logger.Warn("Failed to remove scheduled poll", logfields.JobName(name), logfields.Error(err))
		}
		delete(s.jobs, name)
	}

	for _, job := range jobs {
		poll := job.FindTrigger(registry.TriggerPoll)
		if job.Disabled || !job.IsGit() || poll == nil || !poll.IgnoreHooks || poll.PollInterval <= 0 {
			continue
		}

		gj, err := s.scheduler.NewJob(
			gocron.DurationJob(poll.PollInterval),
			gocron.NewTask(s.executePoll, job),
			gocron.WithName(job.Name+"-poll"),
		)
		if err != nil {
			s.logger.Error("Failed to schedule poll", logfields.JobName(job.Name), logfields.Error(err))
			continue
		}
		s.jobs[job.Name] = gj
		s.logger.Info("Scheduled periodic poll",
			logfields.JobName(job.Name),
			slog.Duration("interval", poll.PollInterval))
	}
}

// ScheduledJobs returns the names of jobs with an active scheduled poll.
func (s *Scheduler) ScheduledJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// executePoll is called by gocron on each interval tick.
func (s *Scheduler) executePoll(job *registry.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	changed, err := s.poller.Poll(ctx, job)
	if err != nil {
		s.logger.Error("Scheduled poll failed", logfields.JobName(job.Name), logfields.Error(err))
		return
	}
	if !changed {
		return
	}

	cause := dispatch.Cause{Trigger: registry.TriggerPoll}
	quiet := time.Duration(job.QuietPeriodSeconds) * time.Second
	if err := s.builds.ScheduleBuild(ctx, job, quiet, cause); err != nil {
		s.logger.Error("Failed to schedule build from poll", logfields.JobName(job.Name), logfields.Error(err))
	}
}
