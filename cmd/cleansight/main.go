// Package main implements the entry point for the CleanSight backend.
// CleanSight ingests live endoscope video from multiple clients, runs a
// pluggable inference pipeline over every frame, and archives the results
// as aligned raw and annotated video segments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/config"
	"github.com/Jiadezhende/CleanSightBackend/flush"
	"github.com/Jiadezhende/CleanSightBackend/gateway"
	"github.com/Jiadezhende/CleanSightBackend/health"
	"github.com/Jiadezhende/CleanSightBackend/media"
	"github.com/Jiadezhende/CleanSightBackend/metric"
	"github.com/Jiadezhende/CleanSightBackend/natsclient"
	"github.com/Jiadezhende/CleanSightBackend/pipeline"
	"github.com/Jiadezhende/CleanSightBackend/scheduler"
	"github.com/Jiadezhende/CleanSightBackend/service"
	"github.com/Jiadezhende/CleanSightBackend/storage"
	"github.com/Jiadezhende/CleanSightBackend/task"
	"github.com/Jiadezhende/CleanSightBackend/task/builtin"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cleansight"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, logger, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, app, cliCfg.ShutdownTimeout)
}

// initializeCLI parses and validates flags
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// initializeConfiguration loads the config and sets up logging from it
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Debug {
		cfg.Log.Level = "debug"
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	slog.Info("Starting CleanSight (real-time video inspection)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cfg, logger, nil
}

// application holds the assembled long-running pieces.
type application struct {
	svc     *service.Service
	gw      *gateway.Gateway
	metrics *metric.Server
	nats    *natsclient.Client
}

// buildApplication wires the full processing stack from the configuration.
func buildApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	store, err := buildStore(cfg, logger, metricsRegistry)
	if err != nil {
		return nil, err
	}

	registry := task.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		return nil, fmt.Errorf("register tasks: %w", err)
	}
	slog.Info("inference tasks registered", "tasks", registry.Names())

	pipe := pipeline.New(registry, cfg.Engine.Workers, cfg.Engine.WorkerQueue,
		pipeline.WithTaskTimeout(cfg.TaskTimeout()),
		pipeline.WithLogger(logger),
		pipeline.WithMetricsRegistry(metricsRegistry),
	)

	segments, err := storage.NewFileStore(cfg.Engine.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("open segment store: %w", err)
	}

	flusher := flush.New(store, media.NewFFmpegEncoder(logger), segments, cfg.Engine.OutputRoot,
		flush.WithSegmentLength(cfg.Engine.SegmentLength),
		flush.WithFrameRate(cfg.Engine.FrameRate),
		flush.WithLogger(logger),
		flush.WithMetricsRegistry(metricsRegistry),
	)

	sched := scheduler.New(store, pipe, flusher,
		scheduler.WithIdleSleep(cfg.IdleSleep()),
		scheduler.WithLogger(logger),
		scheduler.WithMetricsRegistry(metricsRegistry),
	)
	if err := sched.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize scheduler: %w", err)
	}

	natsClient, events, err := buildEvents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := service.New(service.Deps{
		Store:     store,
		Registry:  registry,
		Scheduler: sched,
		Events:    events,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	gw, err := gateway.New(svc, cfg.Server.ListenAddr,
		gateway.WithPushInterval(cfg.PushInterval()),
		gateway.WithLogger(logger),
		gateway.WithHealthMonitor(buildMonitor(cfg, svc, natsClient)),
	)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.Server.MetricsPort > 0 {
		metricsServer = metric.NewServer(cfg.Server.MetricsPort, "/metrics", metricsRegistry)
	}

	return &application{svc: svc, gw: gw, metrics: metricsServer, nats: natsClient}, nil
}

// buildStore creates the per-client frame store from the engine config.
func buildStore(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*clientstore.Store, error) {
	opts := []clientstore.Option{
		clientstore.WithRealtimeCapacity(cfg.Engine.RealtimeCapacity),
		clientstore.WithLogger(logger),
		clientstore.WithMetricsRegistry(registry),
	}

	if cfg.Engine.CachePolicy != "" {
		policy, err := clientstore.ParsePolicy(cfg.Engine.CachePolicy)
		if err != nil {
			return nil, fmt.Errorf("cache policy: %w", err)
		}
		opts = append(opts, clientstore.WithCachePolicy(policy, cfg.Engine.CacheMaxDepth))
	}

	if cfg.Engine.IngestRateLimit > 0 {
		burst := cfg.Engine.IngestBurst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, clientstore.WithRateLimit(cfg.Engine.IngestRateLimit, burst))
	}

	return clientstore.New(opts...), nil
}

// buildMonitor registers liveness checks for the long-running pieces.
func buildMonitor(cfg *config.Config, svc *service.Service, natsClient *natsclient.Client) *health.Monitor {
	monitor := health.NewMonitor(appName)

	monitor.Register("scheduler", func() health.Status {
		if svc.Status().Running {
			return health.NewHealthy("", "running")
		}
		return health.NewUnhealthy("", "scheduler not running")
	})

	outputRoot := cfg.Engine.OutputRoot
	monitor.Register("storage", func() health.Status {
		info, err := os.Stat(outputRoot)
		if err != nil || !info.IsDir() {
			return health.NewUnhealthy("", "output root unavailable")
		}
		return health.NewHealthy("", "writable")
	})

	if natsClient != nil {
		monitor.Register("events", func() health.Status {
			if natsClient.IsConnected() {
				return health.NewHealthy("", "connected")
			}
			return health.NewDegraded("", "event bus disconnected")
		})
	}

	return monitor
}

// buildEvents connects the optional NATS event publisher. No URL means
// events are disabled and the returned client is nil.
func buildEvents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, *service.EventPublisher, error) {
	if cfg.NATS.URL == "" {
		return nil, nil, nil
	}

	slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
	client, err := natsclient.NewClient(cfg.NATS.URL, natsclient.WithName(appName))
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return client, service.NewEventPublisher(client.Conn(), logger), nil
}

// runWithSignalHandling starts the servers and handles shutdown signals
func runWithSignalHandling(ctx context.Context, app *application, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := app.svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return app.gw.Start(groupCtx)
	})
	if app.metrics != nil {
		group.Go(func() error {
			return app.metrics.Start()
		})
	}

	slog.Info("CleanSight started successfully")

	<-groupCtx.Done()
	slog.Info("Received shutdown signal")

	return shutdown(app, group, shutdownTimeout)
}

// shutdown stops the pieces in reverse dependency order.
func shutdown(app *application, group *errgroup.Group, timeout time.Duration) error {
	if err := app.gw.Stop(timeout); err != nil {
		slog.Error("Error stopping gateway", "error", err)
	}
	if app.metrics != nil {
		if err := app.metrics.Stop(); err != nil {
			slog.Error("Error stopping metrics server", "error", err)
		}
	}
	if err := app.svc.Stop(timeout); err != nil {
		slog.Error("Error stopping service", "error", err)
		return err
	}
	if app.nats != nil {
		app.nats.Close()
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("CleanSight shutdown complete")
	return nil
}
