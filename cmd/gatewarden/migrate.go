// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/store"
)

// newMigrateCmd creates the migrate subcommand and its actions.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, or inspect the PostgreSQL schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				if dirty {
					cmd.Printf("Version: %d (dirty)\n", version)
				} else {
					cmd.Printf("Version: %d\n", version)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force the migration version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").
					With("version", args[0]).
					Wrapf(err, "version must be an integer")
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Version forced to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads the configuration, opens a migrator, and runs fn with it.
func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()

	return fn(migrator)
}
