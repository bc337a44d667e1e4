// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Gatewarden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatewarden",
		Short: "Gatewarden - an authentication and session service",
		Long: `Gatewarden is an HTTP authentication service with bcrypt credentials,
cookie or Basic sessions, and a single-use password-reset flow.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
