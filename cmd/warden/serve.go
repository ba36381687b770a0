package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gameserverkit/warden/internal/api"
	"github.com/gameserverkit/warden/internal/backup"
	"github.com/gameserverkit/warden/internal/config"
	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/logger"
	"github.com/gameserverkit/warden/internal/metrics"
	"github.com/gameserverkit/warden/internal/ports"
	"github.com/gameserverkit/warden/internal/remote"
	"github.com/gameserverkit/warden/internal/schedule"
	"github.com/gameserverkit/warden/internal/supervisor"
	"github.com/gameserverkit/warden/internal/tracing"
	"github.com/gameserverkit/warden/internal/update"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the instance manager daemon",
	Long: `Start warden in daemon mode. The daemon supervises server processes,
serves the management API and, when configured, exposes Prometheus
metrics and runs scheduled update-availability checks.

This is the default mode when no subcommand is specified.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfgPath := getConfigPath()

	store, err := config.Open(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	settings := store.Snapshot()

	// Manager log lines are mirrored into a ring buffer served by the
	// diagnostics endpoint.
	logBuffer := logger.NewLogBuffer(1000)
	base := logger.New(settings.Log.Level, settings.Log.Format)
	log := slog.New(logger.NewTeeHandler(base.Handler(), logBuffer))
	slog.SetDefault(log)

	slog.Info("warden starting",
		"version", version,
		"pid", os.Getpid(),
		"settings", cfgPath,
		"root_dir", store.RootDir(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:    settings.Tracing.Enabled,
		Exporter:   settings.Tracing.Exporter,
		Endpoint:   settings.Tracing.Endpoint,
		SampleRate: settings.Tracing.SampleRate,
		UseTLS:     settings.Tracing.UseTLS,
		Version:    version,
	}, log)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	hub := events.NewHub()
	svc := instances.NewService(store, log)
	go func() {
		if err := svc.Watch(ctx); err != nil {
			slog.Warn("instance watcher unavailable", "error", err)
		}
	}()

	sup := supervisor.New(store, hub, log)
	sup.SetAllocator(ports.New(store, sup.RunningPorts, log))

	downloader := remote.NewDownloader(store, log)
	cache := update.NewCache(svc.Layout, downloader, log)
	backups := backup.NewZipService(svc.Layout, log)
	guard := &update.Guard{}
	graceful := update.NewCoordinator(sup, log)
	pipeline := update.NewPipeline(svc, sup, backups, cache, guard, hub, graceful, log)
	sup.SetStartGate(guard.GateStart)

	var metricsServer *metrics.Server
	if settings.Metrics.Enabled {
		metricsServer = metrics.NewServer(settings.Metrics.Listen, settings.Metrics.Path, log)
		metricsServer.Start()

		sampler := metrics.NewSampler(sup.Running, func(name string) (float64, uint64, bool) {
			u := sup.ResourceUsage(name)
			return u.CPUPercent, u.RSSBytes, u.Known
		}, log, 0)
		go sampler.Run(ctx)
	}

	var checker *schedule.Checker
	if spec := settings.Updates.CheckSchedule; spec != "" {
		checker, err = schedule.NewChecker(spec, pipeline.Status, log)
		if err != nil {
			slog.Error("invalid update check schedule", "spec", spec, "error", err)
			os.Exit(1)
		}
		if err := checker.Start(); err != nil {
			slog.Error("failed to start update checker", "error", err)
			os.Exit(1)
		}
	}

	var apiServer *api.Server
	if settings.API.Enabled {
		apiServer = api.NewServer(settings.API.Listen, sup, pipeline, svc, hub, logBuffer, log)
		apiServer.Start()
	}

	sig := <-sigChan
	slog.Info("received shutdown signal", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(settings.Server.StopTimeoutSeconds+settings.Server.KillTimeoutSeconds+5)*time.Second)
	defer shutdownCancel()

	if checker != nil {
		checker.Stop(shutdownCtx)
	}
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			slog.Warn("API server shutdown error", "error", err)
		}
	}

	sup.StopAll()

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "error", err)
		}
	}

	slog.Info("warden shutdown complete")
}
