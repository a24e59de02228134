package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/smoyen/buildhook/internal/config"
	"github.com/smoyen/buildhook/internal/daemon"
	"github.com/smoyen/buildhook/internal/dispatch"
	"github.com/smoyen/buildhook/internal/gituri"
	"github.com/smoyen/buildhook/internal/queue"
	"github.com/smoyen/buildhook/internal/registry"
	"github.com/smoyen/buildhook/internal/retry"
	"github.com/smoyen/buildhook/internal/trigger"
	"github.com/smoyen/buildhook/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Run the webhook dispatch daemon"`

	Dispatch struct {
		Commit string `help:"Commit ID of the push" required:""`
		URI    string `help:"Repository URI of the push" required:""`
		Bypass bool   `help:"Queue matched builds directly instead of polling first"`
	} `cmd:"" help:"Dispatch a single push event and wait for triggered builds"`

	Init struct {
		Registry string `help:"Registry file path" default:"jobs.yaml"`
		Force    bool   `help:"Overwrite existing files"`
	} `cmd:"" help:"Write sample configuration and registry files"`

	Version struct{} `cmd:"" help:"Print the version"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "serve":
		cfg := loadConfig()
		setupLogging(cfg)
		if err := runServe(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "dispatch":
		cfg := loadConfig()
		setupLogging(cfg)
		if err := runDispatch(cfg); err != nil {
			slog.Error("Dispatch failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Registry, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s and %s\n", CLI.Config, CLI.Init.Registry)
	case "version":
		fmt.Printf("buildhook %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err, "path", CLI.Config)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func runServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, slog.Default())
	if err != nil {
		return err
	}

	if err := d.Start(ctx); err != nil {
		return err
	}

	slog.Info("Daemon started, waiting for shutdown signal...")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return d.Stop(stopCtx)
}

// runDispatch feeds one push event through the engine without the HTTP
// surface and waits for any triggered builds to finish.
func runDispatch(cfg *config.Config) error {
	uri, err := gituri.Parse(CLI.Dispatch.URI)
	if err != nil {
		return err
	}

	reg, err := registry.NewFileRegistry(cfg.Registry.Path)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	quiet := time.Duration(cfg.Dispatch.DefaultQuietPeriodSeconds) * time.Second
	bq := queue.NewBuildQueue(cfg.Queue.Size, cfg.Queue.Workers, &queue.CommandBuilder{}, queue.Options{Retry: retry.FromConfig(cfg.Queue)})
	bq.Start(ctx)
	defer bq.Stop(ctx)

	pushTrigger := trigger.New(bq, trigger.NewGitPoller(), trigger.Options{DefaultQuietPeriod: quiet})
	engine := dispatch.New(reg, cfg, bq, pushTrigger, dispatch.Options{DefaultQuietPeriod: quiet})

	event := dispatch.PushEvent{CommitID: CLI.Dispatch.Commit, RepositoryURI: uri}
	result, err := engine.Dispatch(ctx, event, CLI.Dispatch.Bypass)
	if err != nil {
		return err
	}

	for _, msg := range result.Messages {
		fmt.Println(msg)
	}

	pushTrigger.Wait()
	waitForQueue(ctx, bq)
	return nil
}

func waitForQueue(ctx context.Context, bq *queue.BuildQueue) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if bq.Length() == 0 && len(bq.ActiveBuilds()) == 0 {
				return
			}
		}
	}
}
