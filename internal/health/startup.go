// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mcfleet/internal/config"
	"github.com/ManuGH/mcfleet/internal/log"
)

// PerformStartupChecks validates the host environment before any workload
// is supervised.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str(log.FieldEvent, "startup.checks_begin").Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWorkloadRoots(logger, cfg.Workloads.AllowedRoots); err != nil {
		return fmt.Errorf("workload roots check failed: %w", err)
	}
	if cfg.Console.RulesFile != "" {
		if err := checkFileReadable(cfg.Console.RulesFile); err != nil {
			return fmt.Errorf("console rules file: %w", err)
		}
	}
	checkLaunchBinaries(logger, cfg.Launch.Commands)

	if cfg.Store.Backend == config.StoreMemory {
		logger.Warn().
			Str("store_backend", cfg.Store.Backend).
			Msg("workload store is in memory; definitions are lost on restart")
	}
	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; workload definitions may be lost on reboot")
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := checkWritable(path); err != nil {
		return err
	}
	logger.Info().Str(log.FieldPath, path).Msg("data directory is writable")
	return nil
}

func checkWorkloadRoots(logger zerolog.Logger, roots []string) error {
	for _, root := range roots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("workload root must be absolute: %s", root)
		}
		// MkdirAll returns nil if the root exists.
		if err := os.MkdirAll(root, 0o750); err != nil {
			return fmt.Errorf("ensure workload root %s: %w", root, err)
		}
	}
	if len(roots) > 0 {
		logger.Info().Int("count", len(roots)).Msg("workload roots validated")
	}
	return nil
}

// checkLaunchBinaries only warns: a workload may ship its own launcher
// script relative to its install path.
func checkLaunchBinaries(logger zerolog.Logger, commands map[string]string) {
	kinds := make([]string, 0, len(commands))
	for k := range commands {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fields := strings.Fields(commands[kind])
		if len(fields) == 0 || strings.Contains(fields[0], "${") || filepath.IsAbs(fields[0]) {
			continue
		}
		if _, err := exec.LookPath(fields[0]); err != nil {
			logger.Warn().
				Str("loader_kind", kind).
				Str("binary", fields[0]).
				Msg("launch binary not found on PATH")
		}
	}
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
