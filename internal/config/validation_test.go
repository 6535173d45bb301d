// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mcfleet/internal/validate"
)

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"log level", func(c *AppConfig) { c.Log.Level = "chatty" }, "log.level"},
		{"ops addr", func(c *AppConfig) { c.Ops.ListenAddr = "9470" }, "ops.listen_addr"},
		{"queue size", func(c *AppConfig) { c.Bus.QueueSize = 0 }, "bus.queue_size"},
		{"store backend", func(c *AppConfig) { c.Store.Backend = "etcd" }, "store.backend"},
		{"relative root", func(c *AppConfig) { c.Workloads.AllowedRoots = []string{"srv"} }, "workloads.allowed_roots[0]"},
		{"stop grace", func(c *AppConfig) { c.Supervisor.StopGrace = 0 }, "supervisor.stop_grace"},
		{"stop command", func(c *AppConfig) { c.Supervisor.StopCommand = " " }, "supervisor.stop_command"},
		{"launch kind", func(c *AppConfig) { c.Launch.Commands = map[string]string{"quilt": "java"} }, "launch.commands.quilt"},
		{"launch env", func(c *AppConfig) { c.Launch.Env = []string{"NOVALUE"} }, "launch.env[0]"},
		{"command rate", func(c *AppConfig) { c.Console.CommandRate = 0 }, "console.command_rate"},
		{"catalog source", func(c *AppConfig) { c.Catalog.Source = "ftp" }, "catalog.source"},
		{"manifest url", func(c *AppConfig) { c.Catalog.ManifestURL = "file:///etc/passwd" }, "catalog.manifest_url"},
		{"loader template", func(c *AppConfig) {
			c.Catalog.LoaderURLs = map[string]string{"fabric": "https://meta.example/loaders"}
		}, "catalog.loader_urls.fabric"},
		{"static engines", func(c *AppConfig) { c.Catalog.Source = CatalogStatic }, "catalog.static.engines"},
		{"schedule", func(c *AppConfig) { c.Catalog.RefreshSchedule = "every tuesday" }, "catalog.refresh_schedule"},
		{"redis addr", func(c *AppConfig) { c.Catalog.Cache.Backend = CacheRedis }, "catalog.cache.addr"},
		{"exporter", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
		{"sample rate", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, validate.ErrValidation)

			var verr *validate.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate_DisabledSectionsAreNotChecked(t *testing.T) {
	cfg := Defaults()
	cfg.Ops.Enabled = false
	cfg.Ops.ListenAddr = ""
	cfg.Telemetry.Exporter = ""
	assert.NoError(t, Validate(cfg))
}
