// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/lockout"
)

// NewLockoutCmd creates the lockout command group.
func NewLockoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lockout",
		Short: "Inspect and reset persisted lockout state",
	}

	cmd.AddCommand(newLockoutStatusCmd())
	cmd.AddCommand(newLockoutResetCmd())
	cmd.AddCommand(newLockoutMigrateCmd())

	return cmd
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(context.Context, lockout.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg)

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(cmd.Context(), store)
}

func newLockoutStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List permanently locked biometric types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, s lockout.Store) error {
				locked, err := lockout.Locked(ctx, s)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(locked))
				for _, t := range locked {
					names = append(names, t.String())
				}
				if jsonOutput {
					out, err := json.Marshal(map[string][]string{"permanently_locked": names})
					if err != nil {
						return oops.Wrapf(err, "format JSON")
					}
					cmd.Println(string(out))
					return nil
				}
				if len(names) == 0 {
					cmd.Println("no permanent lockouts")
					return nil
				}
				cmd.Printf("permanently locked: %s\n", strings.Join(names, ", "))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newLockoutResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear every permanent lockout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, s lockout.Store) error {
				if err := s.Reset(ctx); err != nil {
					return err
				}
				cmd.Println("lockout state cleared")
				return nil
			})
		},
	}
}

// migrator is implemented by stores with an explicit schema step.
type migrator interface {
	Migrate(ctx context.Context) error
}

func newLockoutMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the lockout store schema",
		Long: `Apply the lockout schema to the configured store. SQLite databases are
migrated whenever they are opened; PostgreSQL needs this step unless
--migrate is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, s lockout.Store) error {
				m, ok := s.(migrator)
				if !ok {
					cmd.Println("schema is up to date")
					return nil
				}
				if err := m.Migrate(ctx); err != nil {
					return oops.With("operation", "migrate lockout store").Wrap(err)
				}
				cmd.Println("migrations applied")
				return nil
			})
		},
	}
}
