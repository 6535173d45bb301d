// SPDX-License-Identifier: MIT

// Package daemon provides the core daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/mcfleet/internal/config"
	"github.com/ManuGH/mcfleet/internal/health"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
)

// Options holds what the command line passes to Serve.
type Options struct {
	// ConfigPath is the path to the YAML config file; empty means
	// defaults and ENV only.
	ConfigPath string

	Version string
	Commit  string
}

// Serve loads the configuration, assembles the runtime and blocks until
// ctx is cancelled or a component fails.
func Serve(ctx context.Context, opts Options) error {
	// Safe defaults until the file is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Output:  os.Stdout,
		Service: "mcfleet",
		Version: opts.Version,
	})

	loader := config.NewLoader(opts.ConfigPath, opts.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Output:  os.Stdout,
		Service: cfg.Log.Service,
		Version: opts.Version,
	})
	logger := log.WithComponent("daemon")
	metrics.SetBuildInfo(opts.Version, opts.Commit)

	logger.Info().
		Str("version", opts.Version).
		Str("config", opts.ConfigPath).
		Str("data_dir", cfg.DataDir).
		Str("ops_listen", cfg.Ops.ListenAddr).
		Msg("Starting mcfleet daemon")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	rt, err := Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	mgr, err := NewManager(Deps{
		Logger:     logger,
		Config:     cfg,
		OpsHandler: NewOpsHandler(rt.Health, cfg.Ops.RateLimit),
	})
	if err != nil {
		_ = rt.close(context.WithoutCancel(ctx))
		return err
	}
	rt.RegisterShutdownHooks(mgr)

	var holder *config.ConfigHolder
	if opts.ConfigPath != "" {
		holder = config.NewConfigHolder(cfg, loader, opts.ConfigPath)
	}

	err = NewApp(logger, mgr, holder, rt, opts.ConfigPath).Run(ctx)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.exit").Msg("Daemon stopped with error")
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.exit").Msg("Daemon stopped")
	return nil
}

// WaitForShutdown returns a context that ends on SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
