// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/mcfleet/internal/config"
	"github.com/ManuGH/mcfleet/internal/persistence/sqlite"
	"github.com/ManuGH/mcfleet/internal/version"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Maintain the workload store",
	}
	cmd.AddCommand(newStoreVerifyCmd())
	return cmd
}

func newStoreVerifyCmd() *cobra.Command {
	var (
		path       string
		mode       string
		configPath string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check SQLite workload store integrity",
		Long: `Check SQLite workload store integrity.

Without --path the store location is taken from the configuration. Other
backends have no integrity check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode = strings.ToLower(strings.TrimSpace(mode))
			if mode != sqlite.VerifyQuick && mode != sqlite.VerifyFull {
				return usageError("invalid mode %q, use quick or full", mode)
			}

			if path == "" {
				cfg, err := config.NewLoader(resolveConfigPath(configPath), version.Version).Load()
				if err != nil {
					return err
				}
				if cfg.Store.Backend != config.StoreSQLite {
					return usageError("store backend is %q; verify only supports sqlite", cfg.Store.Backend)
				}
				path = cfg.StorePath()
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("store not found: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Verifying integrity of %s (mode: %s)...\n", path, mode)
			issues, err := sqlite.VerifyIntegrity(path, mode)
			if err != nil {
				return fmt.Errorf("verification interrupted: %w", err)
			}
			if issues != nil {
				for _, issue := range issues {
					_, _ = fmt.Fprintf(out, "  - %s\n", issue)
				}
				return fmt.Errorf("corruption detected in %s", path)
			}
			_, err = fmt.Fprintln(out, "Integrity verified: ok")
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the SQLite store file")
	cmd.Flags().StringVar(&mode, "mode", sqlite.VerifyQuick, "verification mode: quick or full")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	return cmd
}
