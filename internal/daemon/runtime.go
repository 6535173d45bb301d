// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mcfleet/internal/audit"
	"github.com/ManuGH/mcfleet/internal/bus"
	"github.com/ManuGH/mcfleet/internal/cache"
	"github.com/ManuGH/mcfleet/internal/config"
	"github.com/ManuGH/mcfleet/internal/console"
	"github.com/ManuGH/mcfleet/internal/controlplane"
	"github.com/ManuGH/mcfleet/internal/health"
	"github.com/ManuGH/mcfleet/internal/log"
	"github.com/ManuGH/mcfleet/internal/registry"
	"github.com/ManuGH/mcfleet/internal/resilience"
	"github.com/ManuGH/mcfleet/internal/supervisor"
	"github.com/ManuGH/mcfleet/internal/telemetry"
	"github.com/ManuGH/mcfleet/internal/versions"
)

const cacheJanitorInterval = 5 * time.Minute

// Runtime holds every long-lived component of one daemon process.
type Runtime struct {
	Config config.AppConfig

	Telemetry    *telemetry.Provider
	Bus          *bus.Bus
	Store        registry.Store
	Cache        cache.Cache
	Resolver     *versions.Resolver
	Refresher    *versions.Refresher
	Registry     *registry.Registry
	Rules        *console.RulesHolder
	Fleet        *supervisor.Fleet
	ControlPlane *controlplane.ControlPlane
	Audit        *audit.Logger
	Health       *health.Manager

	ready   *health.ReadyFlag
	closers []namedHook
}

// Build wires the components described by cfg. On error everything built
// so far is released again.
func Build(ctx context.Context, cfg config.AppConfig) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		Audit:  audit.NewLogger(),
		Health: health.NewManager(cfg.Version),
		ready:  health.NewReadyFlag("bootstrap"),
	}
	if err := rt.build(ctx); err != nil {
		if cerr := rt.close(context.WithoutCancel(ctx)); cerr != nil {
			logger := log.WithComponent("daemon")
			logger.Warn().Err(cerr).Str(log.FieldEvent, "daemon.build_cleanup_failed").Msg("cleanup after failed build")
		}
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config
	var err error

	if rt.Telemetry, err = telemetry.NewProvider(ctx, telemetryConfig(cfg)); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	rt.onClose("telemetry", rt.Telemetry.Shutdown)

	rt.Bus = bus.New(bus.DefaultCatalog(),
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithRequestTimeout(cfg.Bus.RequestTimeout),
		bus.WithTracer(telemetry.Tracer("mcfleet/bus")),
	)
	rt.onClose("bus", rt.Bus.Close)

	if rt.Store, err = registry.OpenStore(cfg.Store.Backend, cfg.StorePath()); err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	rt.onClose("store", func(context.Context) error { return rt.Store.Close() })

	if err = rt.buildCatalog(ctx); err != nil {
		return err
	}

	if rt.Registry, err = registry.New(ctx, rt.Store,
		registry.WithAllowedRoots(cfg.Workloads.AllowedRoots...),
		registry.WithComboValidator(rt.Resolver),
	); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	if rt.Rules, err = console.NewRulesHolder(cfg.Console.RulesFile); err != nil {
		return fmt.Errorf("console rules: %w", err)
	}
	rt.onClose("console-rules", func(context.Context) error { return rt.Rules.Close() })

	rt.Fleet = supervisor.NewFleet(rt.Bus, supervisorOptions(cfg, rt.Rules))
	rt.onClose("fleet", rt.Fleet.Shutdown)

	rt.ControlPlane = controlplane.New(rt.Bus, rt.Registry, rt.Fleet, rt.Resolver)
	if err = rt.ControlPlane.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap fleet: %w", err)
	}
	if err = rt.ControlPlane.Register(); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	rt.onClose("controlplane", func(context.Context) error {
		rt.ControlPlane.Unregister()
		return nil
	})

	rt.registerChecks()
	logger := log.WithComponent("daemon")
	logger.Info().
		Str(log.FieldEvent, "daemon.built").
		Str("store_backend", cfg.Store.Backend).
		Str("catalog_source", cfg.Catalog.Source).
		Str("cache_backend", cfg.Catalog.Cache.Backend).
		Int("workloads", len(rt.Registry.All())).
		Msg("runtime assembled")
	return nil
}

func (rt *Runtime) buildCatalog(ctx context.Context) error {
	cfg := rt.Config.Catalog
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
		}, log.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		rt.Cache = rc
		rt.Health.RegisterChecker(health.Informational(health.NewFuncChecker("catalog_cache", rc.HealthCheck)))
	default:
		rt.Cache = cache.NewMemoryCache(cacheJanitorInterval)
	}
	rt.onClose("catalog-cache", func(context.Context) error { return rt.Cache.Close() })

	src, err := catalogSource(rt.Config)
	if err != nil {
		return err
	}
	rt.Resolver = versions.NewResolver(src, rt.Cache,
		versions.WithTTL(cfg.TTL),
		versions.WithFetchTimeout(cfg.FetchTimeout),
		versions.WithBreaker(resilience.NewCircuitBreaker("catalog", cfg.BreakerThreshold, cfg.BreakerReset)),
		versions.WithTracer(telemetry.Tracer("mcfleet/versions")),
	)

	if cfg.Source == config.CatalogHTTP && cfg.RefreshSchedule != "" {
		if rt.Refresher, err = versions.NewRefresher(rt.Resolver, cfg.RefreshSchedule); err != nil {
			return fmt.Errorf("catalog refresh schedule: %w", err)
		}
		rt.onClose("catalog-refresher", rt.Refresher.Stop)
	}
	return nil
}

// catalogSource returns the configured upstream. HTTP requests are traced
// through the global tracer provider.
func catalogSource(cfg config.AppConfig) (versions.Source, error) {
	c := cfg.Catalog
	if c.Source == config.CatalogStatic {
		s, err := staticSource(c.Static)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	loaders := make(map[versions.LoaderKind]string, len(c.LoaderURLs))
	for k, u := range c.LoaderURLs {
		kind, err := versions.ParseLoaderKind(k)
		if err != nil {
			return nil, fmt.Errorf("catalog.loader_urls: %w", err)
		}
		loaders[kind] = u
	}
	return &versions.HTTPSource{
		Client: &http.Client{
			Timeout:   c.FetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		ManifestURL: c.ManifestURL,
		LoaderURLs:  loaders,
		UserAgent:   c.UserAgent,
	}, nil
}

func staticSource(sc config.StaticCatalog) (*versions.StaticSource, error) {
	builds := make(map[versions.LoaderKind]map[string][]versions.LoaderBuild, len(sc.Loaders))
	for k, byEngine := range sc.Loaders {
		kind, err := versions.ParseLoaderKind(k)
		if err != nil {
			return nil, fmt.Errorf("catalog.static.loaders: %w", err)
		}
		m := make(map[string][]versions.LoaderBuild, len(byEngine))
		for engine, list := range byEngine {
			for _, b := range list {
				m[engine] = append(m[engine], versions.LoaderBuild{
					Version:     b.Version,
					Recommended: b.Recommended,
					Latest:      b.Latest,
					Bugged:      b.Bugged,
				})
			}
		}
		builds[kind] = m
	}
	return &versions.StaticSource{
		EngineVersions: append([]string(nil), sc.Engines...),
		Builds:         builds,
	}, nil
}

func supervisorOptions(cfg config.AppConfig, rules console.RuleSource) supervisor.Options {
	commands := supervisor.DefaultCommands()
	for k, v := range cfg.Launch.Commands {
		commands[k] = v
	}
	return supervisor.Options{
		Launcher:     supervisor.Launcher{Commands: commands, Env: cfg.Launch.Env},
		StopGrace:    cfg.Supervisor.StopGrace,
		KillGrace:    cfg.Supervisor.KillGrace,
		StopCommand:  cfg.Supervisor.StopCommand,
		DrainTimeout: cfg.Supervisor.DrainTimeout,
		CrashLines:   cfg.Supervisor.CrashLines,
		Rules:        rules,
		HistoryLines: cfg.Console.HistoryLines,
		CommandRate:  rate.Limit(cfg.Console.CommandRate),
		CommandBurst: cfg.Console.CommandBurst,
	}
}

func telemetryConfig(cfg config.AppConfig) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SampleRate,
	}
}

func (rt *Runtime) registerChecks() {
	rt.Health.RegisterChecker(rt.ready)
	rt.Health.RegisterChecker(health.NewWritableDirChecker("data_dir", rt.Config.DataDir))
	rt.Health.RegisterChecker(health.NewFuncChecker("workload_store", func(ctx context.Context) error {
		_, err := rt.Store.LoadAll(ctx)
		return err
	}))
	rt.Health.RegisterChecker(health.Informational(health.NewFuncChecker("version_catalog", func(ctx context.Context) error {
		_, err := rt.Resolver.Engines(ctx)
		return err
	})))
}

// SetReady flips the readiness probe.
func (rt *Runtime) SetReady(ready bool) { rt.ready.Set(ready) }

func (rt *Runtime) onClose(name string, fn ShutdownHook) {
	rt.closers = append(rt.closers, namedHook{name: name, hook: fn})
}

// RegisterShutdownHooks hands every release step to m. They run LIFO, so
// workloads stop before the bus, store and exporters go away.
func (rt *Runtime) RegisterShutdownHooks(m Manager) {
	for _, c := range rt.closers {
		m.RegisterShutdownHook(c.name, c.hook)
	}
	rt.closers = nil
	m.RegisterShutdownHook("readiness", func(context.Context) error {
		rt.SetReady(false)
		return nil
	})
}

// close releases whatever Build created, newest first.
func (rt *Runtime) close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.closers[i].name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
