// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/mcfleet/internal/validate"
	"github.com/ManuGH/mcfleet/internal/versions"
)

// Validate checks the resolved configuration and returns every problem at
// once as a validate.ValidationError.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("data_dir", cfg.DataDir)
	v.LogLevel("log.level", cfg.Log.Level)

	validateOps(v, cfg.Ops)

	v.Positive("bus.queue_size", cfg.Bus.QueueSize)
	v.PositiveDuration("bus.request_timeout", cfg.Bus.RequestTimeout)

	v.OneOf("store.backend", cfg.Store.Backend, []string{StoreSQLite, StoreBadger, StoreFile, StoreMemory})
	for i, root := range cfg.Workloads.AllowedRoots {
		v.AbsolutePath(fmt.Sprintf("workloads.allowed_roots[%d]", i), root)
	}

	s := cfg.Supervisor
	v.PositiveDuration("supervisor.stop_grace", s.StopGrace)
	v.PositiveDuration("supervisor.kill_grace", s.KillGrace)
	v.PositiveDuration("supervisor.drain_timeout", s.DrainTimeout)
	v.NotEmpty("supervisor.stop_command", s.StopCommand)
	v.Range("supervisor.crash_lines", s.CrashLines, 0, 1000)

	validateLaunch(v, cfg.Launch)

	v.Range("console.history_lines", cfg.Console.HistoryLines, 1, 100000)
	if cfg.Console.CommandRate <= 0 {
		v.AddError("console.command_rate", "must be positive", cfg.Console.CommandRate)
	}
	v.Positive("console.command_burst", cfg.Console.CommandBurst)

	validateCatalog(v, cfg.Catalog)
	validateTelemetry(v, cfg.Telemetry)

	return v.Err()
}

func validateOps(v *validate.Validator, o OpsConfig) {
	if !o.Enabled {
		return
	}
	v.ListenAddr("ops.listen_addr", o.ListenAddr)
	if o.RateLimit < 0 {
		v.AddError("ops.rate_limit", "must not be negative", o.RateLimit)
	}
}

func validateLaunch(v *validate.Validator, l LaunchConfig) {
	keys := make([]string, 0, len(l.Commands))
	for k := range l.Commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field := "launch.commands." + k
		if k != "default" {
			if _, err := versions.ParseLoaderKind(k); err != nil {
				v.AddError(field, err.Error(), k)
				continue
			}
		}
		v.NotEmpty(field, l.Commands[k])
	}
	for i, kv := range l.Env {
		if name, _, ok := strings.Cut(kv, "="); !ok || name == "" {
			v.AddError(fmt.Sprintf("launch.env[%d]", i), "must be KEY=VALUE", kv)
		}
	}
}

func validateCatalog(v *validate.Validator, c CatalogConfig) {
	v.OneOf("catalog.source", c.Source, []string{CatalogHTTP, CatalogStatic})
	switch c.Source {
	case CatalogHTTP:
		v.URL("catalog.manifest_url", c.ManifestURL, []string{"http", "https"})
		for kind, tmpl := range c.LoaderURLs {
			field := "catalog.loader_urls." + kind
			if k, err := versions.ParseLoaderKind(kind); err != nil || k == versions.LoaderNone {
				v.AddError(field, "unknown loader kind", kind)
				continue
			}
			if !strings.Contains(tmpl, "{engine}") {
				v.AddError(field, "template must contain {engine}", tmpl)
				continue
			}
			v.URL(field, strings.ReplaceAll(tmpl, "{engine}", "x"), []string{"http", "https"})
		}
	case CatalogStatic:
		if len(c.Static.Engines) == 0 {
			v.AddError("catalog.static.engines", "static catalog needs at least one engine version", nil)
		}
		for kind := range c.Static.Loaders {
			if k, err := versions.ParseLoaderKind(kind); err != nil || k == versions.LoaderNone {
				v.AddError("catalog.static.loaders."+kind, "unknown loader kind", kind)
			}
		}
	}

	v.PositiveDuration("catalog.ttl", c.TTL)
	v.PositiveDuration("catalog.fetch_timeout", c.FetchTimeout)
	if c.RefreshSchedule != "" {
		if _, err := versions.ParseSchedule(c.RefreshSchedule); err != nil {
			v.AddError("catalog.refresh_schedule", err.Error(), c.RefreshSchedule)
		}
	}
	v.Positive("catalog.breaker_threshold", c.BreakerThreshold)
	v.PositiveDuration("catalog.breaker_reset", c.BreakerReset)

	v.OneOf("catalog.cache.backend", c.Cache.Backend, []string{CacheMemory, CacheRedis})
	if c.Cache.Backend == CacheRedis {
		v.NotEmpty("catalog.cache.addr", c.Cache.Addr)
		v.Range("catalog.cache.db", c.Cache.DB, 0, 15)
	}
}

func validateTelemetry(v *validate.Validator, t TelemetryConfig) {
	if !t.Enabled {
		return
	}
	v.OneOf("telemetry.exporter", t.Exporter, []string{"grpc", "http"})
	v.NotEmpty("telemetry.endpoint", t.Endpoint)
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.AddError("telemetry.sample_rate", "must be between 0 and 1", t.SampleRate)
	}
}
