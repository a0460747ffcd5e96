// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/registry"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the biogate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biogate",
		Short: "biogate - biometric sensor orchestration",
		Long: `biogate discovers biometric backends, runs authentication sessions
across them under an ANY or ALL confirmation policy, and keeps lockout
state in a durable store.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/biogate/config.yaml)")
	flags.String("platform", registry.DefaultPlatform, "platform capability level")
	flags.String("profile", "", "simulated device profile to install")
	flags.String("log-format", "text", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("workers", 0, "bound on concurrent backend initializations (0 starts all at once)")
	flags.Duration("init-timeout", registry.DefaultInitTimeout, "per-backend initialization timeout")
	flags.StringSlice("exclude", nil, "glob patterns of backend names to skip")
	flags.String("lockout-driver", "sqlite", "lockout store driver (memory, sqlite, redis, postgres)")
	flags.String("lockout-path", "", "SQLite lockout database (default: XDG_DATA_HOME/biogate/lockout.db)")
	flags.String("redis-addr", "", "Redis address for the redis lockout driver")
	flags.String("postgres-dsn", "", "PostgreSQL DSN for the postgres lockout driver")
	flags.Bool("migrate", false, "apply the PostgreSQL lockout schema on open")

	cmd.AddCommand(NewDiscoverCmd())
	cmd.AddCommand(NewAuthCmd())
	cmd.AddCommand(NewLockoutCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}
