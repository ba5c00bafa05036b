package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nftfarm/config"
	"nftfarm/core"
	"nftfarm/integrations/webhooks"
	"nftfarm/observability/logging"
	"nftfarm/observability/metrics"
	farmotel "nftfarm/observability/otel"
	"nftfarm/services/farmd"
	"nftfarm/services/journal"
	"nftfarm/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("farmd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWith("farmd", cfg.Environment, logging.Options{File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := farmotel.Init(ctx, farmotel.FromTelemetry("farmd", cfg.Environment, cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	if err := cfg.ResolveOwner(); err != nil {
		return err
	}
	farmCfg, err := cfg.FarmConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	farmMetrics := metrics.Farm()
	node, err := core.NewNode(core.NodeConfig{
		DB:      db,
		Farm:    farmCfg,
		Paused:  cfg.Pauses.Farm,
		Logger:  logger,
		Metrics: farmMetrics,
	})
	if err != nil {
		db.Close()
		return err
	}
	defer node.Close()

	if dsn := strings.TrimSpace(cfg.JournalDSN); dsn != "" {
		gormDB, err := journal.Open(dsn)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		jrnl, err := journal.New(gormDB)
		if err != nil {
			return err
		}
		jrnl.SetLogger(logger)
		jrnl.OnAppend(func(entry journal.Entry) { farmMetrics.SetJournalSequence(entry.Sequence) })
		seq, head := jrnl.Head()
		farmMetrics.SetJournalSequence(seq)
		logger.Info("journal attached", slog.Uint64("sequence", seq), slog.String("head", head))
		node.Subscribe(jrnl)
	}

	var notifier farmd.SnapshotNotifier
	if endpoint := strings.TrimSpace(cfg.Webhook.Endpoint); endpoint != "" {
		dispatcher, err := webhooks.NewDispatcher(endpoint, []byte(cfg.Webhook.Secret),
			webhooks.WithLogger(logger),
			webhooks.WithTopics(cfg.Webhook.Topics...))
		if err != nil {
			return fmt.Errorf("webhook dispatcher: %w", err)
		}
		defer dispatcher.Close()
		node.Subscribe(dispatcher)
		notifier = dispatcher
	}

	hub := farmd.NewHub(logger)
	node.Subscribe(hub)
	server, err := farmd.New(farmd.Config{
		Node:      node,
		Hub:       hub,
		Limiter:   farmd.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, logger),
		Logger:    logger,
		Telemetry: cfg.Telemetry.Traces,
	})
	if err != nil {
		return err
	}

	scheduler, err := farmd.NewScheduler(node, farmd.SchedulerConfig{
		Schedule:  cfg.SnapshotSchedule,
		ExportDir: cfg.ExportDir,
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := node.RefreshMetrics(); err != nil {
		logger.Warn("initial metrics refresh", slog.Any("error", err))
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("farmd listening", slog.String("addr", cfg.ListenAddress), slog.String("backend", cfg.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
