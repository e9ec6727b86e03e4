// Package main runs the graphsync worker: it keeps the graph store in step
// with the relational system of record on a schedule and serves metrics and
// health while doing so.
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

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "graphsync"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("graphsync failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		logger.Info("configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("starting graphsync",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(cliCfg.ShutdownTimeout)

	return serve(signalCtx, a, cliCfg, logger)
}

// serve runs the worker until the signal context ends.
func serve(ctx context.Context, a *app, cliCfg *CLIConfig, logger *slog.Logger) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start real-time pool: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.metrics != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", "address", a.metrics.Address())
			return a.metrics.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.metrics.Stop()
		})
	}

	if cliCfg.InitialSync {
		g.Go(func() error {
			if _, ok := a.cache.Checkpoint(gctx, cache.CheckpointFull); ok {
				logger.Info("full sync already recorded, skipping initial sync")
				return nil
			}
			report := a.engine.FullSystemSync(gctx)
			logger.Info("initial sync finished",
				"run_id", report.RunID, "success", report.OverallSuccess, "error", report.Error)
			return nil
		})
	}

	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(gctx)
		})
	}

	logger.Info("graphsync started")
	<-gctx.Done()
	logger.Info("shutting down")

	return g.Wait()
}

// shutdownContext bounds cleanup work.
func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
