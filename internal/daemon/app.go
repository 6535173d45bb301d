// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mcfleet/internal/audit"
	"github.com/ManuGH/mcfleet/internal/config"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/metrics"
)

// App owns the long-lived runtime lifecycle (watchers, reload wiring,
// autostart) and delegates listener management and teardown to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	runtime      *Runtime
	configPath   string
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder may be nil when the
// daemon runs without a config file.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, rt *Runtime, configPath string) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		runtime:      rt,
		configPath:   configPath,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.runtime == nil {
		return ErrMissingRuntime
	}
	rt := a.runtime

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		a.manager.RegisterShutdownHook("config-watcher", func(context.Context) error {
			a.cfgHolder.Stop()
			return nil
		})
		a.watchReloads(ctx, g)
		a.watchReloadSignal(ctx, g)
	}

	if err := rt.Rules.Watch(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "console.rules_watch_failed").Msg("console rules will not hot-reload")
	}
	if rt.Refresher != nil {
		rt.Refresher.Start()
	}

	sub, err := rt.Bus.Subscribe(audit.Codes()...)
	if err != nil {
		return err
	}
	g.Go(func() error {
		rt.Audit.Follow(ctx, sub)
		return nil
	})

	g.Go(func() error {
		names := rt.Registry.Autostart()
		if err := rt.Fleet.Autostart(ctx, names); err != nil {
			metrics.IncAutostart("failed")
		} else if len(names) > 0 {
			metrics.IncAutostart("ok")
		}
		rt.SetReady(true)
		metrics.SetDaemonReady(true)
		a.logger.Info().
			Str(log.FieldEvent, "daemon.ready").
			Int("autostart", len(names)).
			Msg("daemon ready")
		return nil
	})

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		metrics.SetDaemonReady(false)
		if err != nil {
			_ = a.manager.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})

	return g.Wait()
}

// watchReloads applies every reloaded configuration. Only the log level
// takes effect at runtime; other changes are logged by the holder as
// restart-required.
func (a *App) watchReloads(ctx context.Context, g *errgroup.Group) {
	applyCh := make(chan config.AppConfig, 1)
	a.cfgHolder.RegisterListener(applyCh)
	applied := a.cfgHolder.Get()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-applyCh:
				summary := config.Diff(applied, next)
				if next.Log.Level != applied.Log.Level {
					log.Configure(log.Config{
						Level:   next.Log.Level,
						Service: next.Log.Service,
						Version: next.Version,
					})
				}
				applied = next
				metrics.IncConfigReload("applied")
				a.runtime.Audit.ConfigReload("system", a.configPath, nil, map[string]string{
					"changed":          strings.Join(summary.ChangedFields, ","),
					"restart_required": strconv.FormatBool(summary.RestartRequired),
				})
			}
		}
	})
}

func (a *App) watchReloadSignal(ctx context.Context, g *errgroup.Group) {
	if a.reloadSignal == nil {
		return
	}
	g.Go(func() error {
		hupChan := make(chan os.Signal, 1)
		signal.Notify(hupChan, a.reloadSignal)
		defer signal.Stop(hupChan)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hupChan:
				a.logger.Info().
					Str(log.FieldEvent, "config.reload_signal").
					Str("signal", a.reloadSignal.String()).
					Msg("received reload signal, reloading config")

				if err := a.cfgHolder.Reload(ctx); err != nil {
					metrics.IncConfigReload("failed")
					a.runtime.Audit.ConfigReload("signal", a.configPath, err, nil)
					a.logger.Warn().
						Err(err).
						Str(log.FieldEvent, "config.reload_failed").
						Msg("config reload failed")
				}
			}
		}
	})
}
