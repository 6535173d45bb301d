// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/mcfleet/internal/daemon"
	"github.com/ManuGH/mcfleet/internal/version"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fleet daemon",
		Long: `Run the fleet daemon in the foreground.

Configuration precedence is ENV > file > defaults. Without --config the
daemon uses $MCFLEET_CONFIG, then $MCFLEET_DATA_DIR/config.yaml when it
exists. SIGHUP reloads the file; SIGINT and SIGTERM stop every workload
and exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := daemon.WaitForShutdown()
			defer stop()
			return daemon.Serve(ctx, daemon.Options{
				ConfigPath: resolveConfigPath(configPath),
				Version:    version.Version,
				Commit:     version.Commit,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	return cmd
}
