// Package daemon wires the registry, dispatch engine, build queue, trigger
// runners, and HTTP servers into one long-running service.
package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/smoyen/buildhook/internal/announce"
	"github.com/smoyen/buildhook/internal/config"
	"github.com/smoyen/buildhook/internal/dispatch"
	apperrors "github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/eventstore"
	"github.com/smoyen/buildhook/internal/identity"
	"github.com/smoyen/buildhook/internal/logfields"
	"github.com/smoyen/buildhook/internal/metrics"
	"github.com/smoyen/buildhook/internal/queue"
	"github.com/smoyen/buildhook/internal/registry"
	"github.com/smoyen/buildhook/internal/retry"
	"github.com/smoyen/buildhook/internal/server/httpserver"
	"github.com/smoyen/buildhook/internal/trigger"
)

// Status represents the daemon lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Daemon is the long-running buildhook service.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	status atomic.Value // Status

	registry    *registry.FileRegistry
	watcher     *registry.Watcher
	buildQueue  *queue.BuildQueue
	dispatcher  *dispatch.Dispatcher
	pushTrigger *trigger.PushTrigger
	poller      *trigger.GitPoller
	scheduler   *Scheduler
	httpServer  *httpserver.Server
	events      eventstore.Store
	announcer   announce.Announcer
	recorder    metrics.Recorder

	startTime time.Time
	cancel    context.CancelFunc
}

// New assembles a daemon from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, apperrors.ConfigError("configuration is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{cfg: cfg, logger: logger}
	d.status.Store(StatusStopped)

	reg, err := registry.NewFileRegistry(cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	d.registry = reg

	if cfg.Registry.Watch {
		w, err := registry.NewWatcher(reg)
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}

	if cfg.EventStore.Path != "" {
		store, err := eventstore.NewSQLiteStore(cfg.EventStore.Path)
		if err != nil {
			return nil, err
		}
		d.events = store
	} else {
		d.events = eventstore.NopStore{}
	}

	promReg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(promReg)
	d.recorder = recorder

	d.buildQueue = queue.NewBuildQueue(cfg.Queue.Size, cfg.Queue.Workers, &queue.CommandBuilder{}, queue.Options{
		Recorder: recorder,
		Events:   d.events,
		Logger:   logger,
		Retry:    retry.FromConfig(cfg.Queue),
	})

	d.poller = trigger.NewGitPoller()
	d.pushTrigger = trigger.New(d.buildQueue, d.poller, trigger.Options{
		Logger:             logger,
		DefaultQuietPeriod: time.Duration(cfg.Dispatch.DefaultQuietPeriodSeconds) * time.Second,
	})

	d.dispatcher = dispatch.New(reg, cfg, d.buildQueue, d.pushTrigger, dispatch.Options{
		Recorder:           recorder,
		Logger:             logger,
		DefaultQuietPeriod: time.Duration(cfg.Dispatch.DefaultQuietPeriodSeconds) * time.Second,
	})

	if cfg.NATS.Enabled {
		a, err := announce.NewNATSAnnouncer(cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		d.announcer = a
	} else {
		d.announcer = announce.NopAnnouncer{}
	}

	sched, err := NewScheduler(d.buildQueue, d.poller, logger)
	if err != nil {
		return nil, err
	}
	d.scheduler = sched

	d.httpServer = httpserver.New(cfg, httpserver.Options{
		Dispatcher: &dispatchRunner{
			dispatcher: d.dispatcher,
			events:     d.events,
			announcer:  d.announcer,
			logger:     logger,
		},
		Runtime:        d,
		Events:         d.events,
		MetricsHandler: metrics.HTTPHandler(promReg),
		Logger:         logger,
	})

	return d, nil
}

// Start brings up every component. It returns once the HTTP servers accept
// connections; Stop shuts the daemon down again.
func (d *Daemon) Start(ctx context.Context) error {
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.buildQueue.Start(ctx)

	d.syncScheduledPolls(ctx)
	d.scheduler.Start(ctx)

	if d.watcher != nil {
		d.watcher.OnReload(func() {
			d.logger.Info("Registry reloaded")
			d.syncScheduledPolls(ctx)
		})
		if err := d.watcher.Start(ctx); err != nil {
			cancel()
			return err
		}
	}

	if err := d.httpServer.Start(ctx); err != nil {
		cancel()
		return err
	}

	d.status.Store(StatusRunning)
	d.logger.Info("Daemon started",
		"webhook_addr", d.cfg.Listen.WebhookAddr,
		"admin_addr", d.cfg.Listen.AdminAddr,
		"jobs", d.JobCount())
	return nil
}

// Stop shuts the daemon down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.status.Store(StatusStopping)

	var errs []error
	if err := d.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if err := d.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	d.pushTrigger.Wait()
	d.buildQueue.Stop(ctx)
	if err := d.announcer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.events.Close(); err != nil {
		errs = append(errs, err)
	}
	if d.cancel != nil {
		d.cancel()
	}

	d.status.Store(StatusStopped)
	d.logger.Info("Daemon stopped")

	if len(errs) > 0 {
		return apperrors.NewError(apperrors.CategoryDaemon, "shutdown finished with errors").
			WithContext("errors", len(errs)).
			Build()
	}
	return nil
}

// GetStatus returns the lifecycle state.
func (d *Daemon) GetStatus() Status {
	return d.status.Load().(Status)
}

func (d *Daemon) syncScheduledPolls(ctx context.Context) {
	err := identity.RunAs(ctx, identity.System(), func(ctx context.Context) error {
		jobs, err := d.registry.AllJobs(ctx)
		if err != nil {
			return err
		}
		d.scheduler.SyncJobs(jobs)
		return nil
	})
	if err != nil {
		d.logger.Error("Failed to sync scheduled polls", logfields.Error(err))
	}
}

// Runtime accessors for the admin API.

func (d *Daemon) StartTime() time.Time { return d.startTime }

func (d *Daemon) QueueLength() int { return d.buildQueue.Length() }

func (d *Daemon) ActiveBuilds() []*queue.Build { return d.buildQueue.ActiveBuilds() }

func (d *Daemon) BuildHistory() []*queue.Build { return d.buildQueue.History() }

func (d *Daemon) JobCount() int {
	n := 0
	_ = identity.RunAs(context.Background(), identity.System(), func(ctx context.Context) error {
		jobs, err := d.registry.AllJobs(ctx)
		if err != nil {
			return err
		}
		n = len(jobs)
		return nil
	})
	return n
}
