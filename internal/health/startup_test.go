// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mcfleet/internal/config"
)

func TestPerformStartupChecks_CreatesDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Workloads.AllowedRoots = []string{filepath.Join(base, "servers")}
	cfg.Launch.Commands = map[string]string{"default": "definitely-not-a-binary-xyz -jar server.jar"}

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	for _, dir := range []string{cfg.DataDir, cfg.Workloads.AllowedRoots[0]} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestPerformStartupChecks_Failures(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
		want   string
	}{
		{"data dir is a file", func(c *config.AppConfig) { c.DataDir = blocker }, "data directory"},
		{"relative root", func(c *config.AppConfig) { c.Workloads.AllowedRoots = []string{"servers"} }, "must be absolute"},
		{"missing rules file", func(c *config.AppConfig) { c.Console.RulesFile = filepath.Join(base, "rules.yaml") }, "console rules file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.DataDir = filepath.Join(base, "data")
			tt.mutate(&cfg)
			err := PerformStartupChecks(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
