// Package main is the entry point for poolsync.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fd1az/poolsync/business/blockchain"
	blockchainDI "github.com/fd1az/poolsync/business/blockchain/di"
	"github.com/fd1az/poolsync/business/pool"
	poolDI "github.com/fd1az/poolsync/business/pool/di"
	"github.com/fd1az/poolsync/business/statesync"
	statesyncDI "github.com/fd1az/poolsync/business/statesync/di"
	"github.com/fd1az/poolsync/internal/apm"
	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/health"
	"github.com/fd1az/poolsync/internal/logger"
	"github.com/fd1az/poolsync/internal/metrics"
	"github.com/fd1az/poolsync/internal/monolith"
	"github.com/fd1az/poolsync/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tuiMode := flag.Bool("tui", false, "Run with the terminal dashboard instead of logs")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("poolsync %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !*tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, cancel, *configPath, *tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode

	var out io.Writer = os.Stderr
	if tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting poolsync",
		"version", version,
		"environment", cfg.App.Environment,
		"role", cfg.Sync.Role,
	)

	stopTelemetry, err := setupTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	hs := health.NewServer(cfg.App.HealthPort, version, log)
	if err := hs.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	}
	defer hs.Stop(context.Background())

	mono := monolith.New(cfg, log, hs)
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.Background(), "shutdown", "error", err)
		}
	}()

	modules := []monolith.Module{
		&blockchain.Module{}, // heads, logs and contract calls
		&statesync.Module{},  // shared cache, write-back and the syncer
		&pool.Module{},       // tracked pairs and quotes
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	rep := &reporter{
		cfg:      cfg,
		log:      log,
		chain:    blockchainDI.GetBlockchainService(mono.Services()),
		syncer:   statesyncDI.GetSyncer(mono.Services()),
		registry: poolDI.GetRegistry(mono.Services()),
		quotes:   poolDI.GetQuoteService(mono.Services()),
	}

	start := func() error {
		if err := mono.StartModules(ctx, modules...); err != nil {
			return fmt.Errorf("failed to start modules: %w", err)
		}
		go rep.run(ctx)
		return rep.syncer.Run(ctx)
	}

	if tuiMode {
		rep.emit = rep.sendToUI
		return runTUI(ctx, cancel, start)
	}

	rep.emit = rep.logSnapshot
	return start()
}

// setupTelemetry starts tracing and metrics when enabled and returns the
// function that flushes them.
func setupTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	tp, err := apm.NewTraceProvider(ctx, apm.Config{
		Provider:    apm.Provider(cfg.Telemetry.Provider),
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	opts := []metrics.Option{
		metrics.WithService(cfg.Telemetry.ServiceName, version),
		metrics.WithPrometheus(),
	}
	if cfg.Telemetry.MetricsOTLP && cfg.Telemetry.Endpoint != "" {
		opts = append(opts, metrics.WithOTLP(cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure, 0))
	}
	mp, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		_ = tp.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	promServer := metrics.NewPrometheusServer(port, log)
	if err := promServer.Start(); err != nil {
		log.Warn(ctx, "failed to start prometheus server", "error", err)
	}

	log.Info(ctx, "telemetry initialized",
		"provider", cfg.Telemetry.Provider,
		"prometheus_port", port,
	)

	return func() {
		shutdownCtx := context.Background()
		errs := errors.Join(promServer.Stop(shutdownCtx), mp.Shutdown(shutdownCtx), tp.Stop())
		if errs != nil {
			log.Warn(shutdownCtx, "telemetry shutdown", "error", errs)
		}
	}, nil
}

func runTUI(ctx context.Context, cancel context.CancelFunc, start func() error) error {
	errCh := make(chan error, 1)
	go func() {
		ui.Send(ui.StartupMsg{Step: "config", Status: ui.StepDone})
		ui.Send(ui.StartupMsg{Step: "ethereum", Status: ui.StepConnecting})
		err := start()
		if err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
		}
		errCh <- err
	}()

	uiErr := ui.Run()
	cancel()
	if uiErr != nil {
		return fmt.Errorf("TUI error: %w", uiErr)
	}
	return <-errCh
}
