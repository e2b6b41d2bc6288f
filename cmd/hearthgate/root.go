// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/hearthgate/hearthgate/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Hearthgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hearthgate",
		Short: "Hearthgate - authorization core for the home platform",
		Long: `Hearthgate decides whether a principal may perform a request at a
place (a household), using wildcard permission grants or role rules.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().AddFlagSet(config.Flags())

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

// loadConfig loads the merged configuration for a command invocation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}
