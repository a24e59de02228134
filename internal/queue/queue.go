package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smoyen/buildhook/internal/dispatch"
	apperrors "github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/eventstore"
	"github.com/smoyen/buildhook/internal/logfields"
	"github.com/smoyen/buildhook/internal/metrics"
	"github.com/smoyen/buildhook/internal/registry"
	"github.com/smoyen/buildhook/internal/retry"
)

// BuildQueue manages the queue of scheduled builds. It implements
// dispatch.BuildScheduler.
type BuildQueue struct {
	builds      chan *Build
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Build
	history     []*Build
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	builder     Builder

	retryPolicy retry.Policy
	recorder    metrics.Recorder
	events      eventstore.Store
	logger      *slog.Logger
}

// Options configures optional BuildQueue collaborators.
type Options struct {
	Recorder metrics.Recorder
	Events   eventstore.Store
	Logger   *slog.Logger
	// Retry applies to transient build failures; zero value means defaults.
	Retry retry.Policy
}

// NewBuildQueue creates a build queue with the specified size, worker count,
// and builder.
func NewBuildQueue(maxSize, workers int, builder Builder, opts Options) *BuildQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 2
	}
	if builder == nil {
		panic("NewBuildQueue: builder is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Events == nil {
		opts.Events = eventstore.NopStore{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.Initial <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	return &BuildQueue{
		builds:      make(chan *Build, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Build),
		history:     make([]*Build, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		builder:     builder,
		retryPolicy: opts.Retry,
		recorder:    opts.Recorder,
		events:      opts.Events,
		logger:      opts.Logger,
	}
}

// Start begins processing builds with the configured number of workers.
func (bq *BuildQueue) Start(ctx context.Context) {
	bq.logger.Info("Starting build queue", "workers", bq.workers, "max_size", bq.maxSize)
	for i := range bq.workers {
		bq.wg.Add(1)
		go bq.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop gracefully shuts down the build queue.
func (bq *BuildQueue) Stop(_ context.Context) {
	close(bq.stopChan)

	// Cancel all active builds
	bq.mu.Lock()
	for _, b := range bq.active {
		if b.cancel != nil {
			b.cancel()
		}
	}
	bq.mu.Unlock()

	bq.wg.Wait()
}

// Length returns the current queue length.
func (bq *BuildQueue) Length() int {
	return len(bq.builds)
}

// ScheduleBuild queues a build for the job after its quiet period. It is the
// dispatch engine's entry point into the queue.
func (bq *BuildQueue) ScheduleBuild(ctx context.Context, job *registry.Job, quietPeriod time.Duration, cause dispatch.Cause) error {
	build := &Build{
		ID:          uuid.NewString(),
		JobName:     job.Name,
		Command:     job.BuildCommand,
		Cause:       cause,
		QuietPeriod: quietPeriod,
		CreatedAt:   time.Now(),
	}
	if err := bq.Enqueue(build); err != nil {
		return err
	}

	payload, _ := json.Marshal(cause)
	if err := bq.events.Append(ctx, build.ID, eventstore.TypeBuildScheduled, payload, map[string]string{
		"job": job.Name,
	}); err != nil {
		bq.logger.Warn("Failed to record scheduled event", logfields.JobID(build.ID), logfields.Error(err))
	}

	bq.logger.Info("Build scheduled",
		logfields.JobID(build.ID),
		logfields.JobName(job.Name),
		logfields.Commit(cause.Commit),
		logfields.Trigger(string(cause.Trigger)),
		logfields.QueueLen(bq.Length()),
		logfields.QuietSeconds(int(quietPeriod/time.Second)))
	return nil
}

// Enqueue adds a build to the queue without blocking. A full queue is an
// error the caller must surface.
func (bq *BuildQueue) Enqueue(build *Build) error {
	if build == nil {
		return apperrors.QueueError("build cannot be nil").Build()
	}
	if build.ID == "" {
		return apperrors.QueueError("build ID is required").Build()
	}

	build.Status = BuildStatusQueued

	select {
	case bq.builds <- build:
		bq.recorder.SetQueueLength(len(bq.builds))
		return nil
	default:
		return apperrors.QueueError("build queue is full").
			WithContext("max_size", bq.maxSize).
			Build()
	}
}

// ActiveBuilds returns a copy of the currently active builds.
func (bq *BuildQueue) ActiveBuilds() []*Build {
	bq.mu.RLock()
	defer bq.mu.RUnlock()

	active := make([]*Build, 0, len(bq.active))
	for _, b := range bq.active {
		cp := *b
		active = append(active, &cp)
	}
	return active
}

// History returns a copy of the completed builds, oldest first.
func (bq *BuildQueue) History() []*Build {
	bq.mu.RLock()
	defer bq.mu.RUnlock()

	out := make([]*Build, 0, len(bq.history))
	for _, b := range bq.history {
		cp := *b
		out = append(out, &cp)
	}
	return out
}

// BuildSnapshot returns a copy of a build (active first, then history).
func (bq *BuildQueue) BuildSnapshot(id string) (*Build, bool) {
	bq.mu.RLock()
	defer bq.mu.RUnlock()

	if b, ok := bq.active[id]; ok {
		cp := *b
		return &cp, true
	}
	for _, b := range bq.history {
		if b.ID == id {
			cp := *b
			return &cp, true
		}
	}
	return nil, false
}

func (bq *BuildQueue) worker(ctx context.Context, workerID string) {
	defer bq.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bq.stopChan:
			return
		case build := <-bq.builds:
			if build != nil {
				bq.recorder.SetQueueLength(len(bq.builds))
				bq.processBuild(ctx, build, workerID)
			}
		}
	}
}

func (bq *BuildQueue) processBuild(ctx context.Context, build *Build, workerID string) {
	buildCtx, cancel := context.WithCancel(ctx)
	build.cancel = cancel
	defer cancel()

	bq.mu.Lock()
	build.Status = BuildStatusWaiting
	bq.active[build.ID] = build
	bq.mu.Unlock()

	if !bq.waitQuietPeriod(buildCtx, build) {
		bq.markCancelled(build)
		return
	}

	startTime := time.Now()
	bq.mu.Lock()
	build.StartedAt = &startTime
	build.Status = BuildStatusRunning
	bq.mu.Unlock()

	bq.appendEvent(ctx, build, eventstore.TypeBuildStarted, map[string]string{
		"job":    build.JobName,
		"worker": workerID,
	})

	err := bq.runWithRetry(buildCtx, build)

	duration := bq.markCompleted(build, err)
	bq.recorder.ObserveBuildDuration(build.JobName, duration, err == nil)
	bq.recorder.IncBuildOutcome(err == nil)

	if err != nil {
		bq.appendEvent(ctx, build, eventstore.TypeBuildFailed, map[string]string{
			"job":   build.JobName,
			"error": err.Error(),
		})
		bq.logger.Error("Build failed",
			logfields.JobID(build.ID),
			logfields.JobName(build.JobName),
			logfields.DurationMS(float64(duration.Milliseconds())),
			logfields.Error(err))
		return
	}

	bq.appendEvent(ctx, build, eventstore.TypeBuildCompleted, map[string]string{
		"job": build.JobName,
	})
	bq.logger.Info("Build completed",
		logfields.JobID(build.ID),
		logfields.JobName(build.JobName),
		logfields.DurationMS(float64(duration.Milliseconds())))
}

// runWithRetry executes the build, retrying transient failures under the
// configured backoff policy.
func (bq *BuildQueue) runWithRetry(ctx context.Context, build *Build) error {
	retries := 0
	for {
		err := bq.builder.Run(ctx, build)
		if err == nil {
			return nil
		}
		if !bq.retryPolicy.ShouldRetry(err, retries) {
			return err
		}
		retries++
		delay := bq.retryPolicy.Delay(retries)
		bq.logger.Warn("Transient build error, retrying",
			logfields.JobID(build.ID),
			logfields.JobName(build.JobName),
			"retry", retries,
			"max_retries", bq.retryPolicy.MaxRetries,
			"delay", delay,
			logfields.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitQuietPeriod blocks until the build's quiet period elapses. It returns
// false when the queue shut down or the context ended first.
func (bq *BuildQueue) waitQuietPeriod(ctx context.Context, build *Build) bool {
	if build.QuietPeriod <= 0 {
		return true
	}
	timer := time.NewTimer(build.QuietPeriod)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-bq.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

func (bq *BuildQueue) markCancelled(build *Build) {
	endTime := time.Now()
	bq.mu.Lock()
	build.CompletedAt = &endTime
	build.Status = BuildStatusCancelled
	delete(bq.active, build.ID)
	bq.addToHistory(build)
	bq.mu.Unlock()
}

func (bq *BuildQueue) markCompleted(build *Build, err error) time.Duration {
	endTime := time.Now()
	bq.mu.Lock()
	build.CompletedAt = &endTime
	if build.StartedAt != nil {
		build.Duration = endTime.Sub(*build.StartedAt)
	}
	delete(bq.active, build.ID)
	bq.addToHistory(build)
	if err != nil {
		build.Status = BuildStatusFailed
		build.Error = err.Error()
	} else {
		build.Status = BuildStatusCompleted
	}
	duration := build.Duration
	bq.mu.Unlock()

	return duration
}

func (bq *BuildQueue) appendEvent(ctx context.Context, build *Build, eventType string, metadata map[string]string) {
	if err := bq.events.Append(ctx, build.ID, eventType, nil, metadata); err != nil {
		bq.logger.Warn("Failed to record build event",
			logfields.JobID(build.ID), "event_type", eventType, logfields.Error(err))
	}
}

func (bq *BuildQueue) addToHistory(build *Build) {
	bq.history = append(bq.history, build)
	if len(bq.history) > bq.historySize {
		copy(bq.history, bq.history[len(bq.history)-bq.historySize:])
		bq.history = bq.history[:bq.historySize]
	}
}
