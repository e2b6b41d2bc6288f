// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hearthgate/hearthgate/internal/authz/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run grant schema migrations",
		Long:  `Apply pending grant schema migrations against the configured PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			databaseURL := cfg.Database.URL
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("database.url or DATABASE_URL is required")
			}

			migrator, err := store.NewMigrator(databaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = migrator.Close() }()

			switch {
			case cmd.Flags().Changed("force"):
				if err := migrator.Force(force); err != nil {
					return err
				}
				cmd.Printf("Forced migration version to %d\n", force)
			case down:
				cmd.Println("Rolling back all migrations...")
				if err := migrator.Down(); err != nil {
					return err
				}
				cmd.Println("Rollback completed")
			default:
				cmd.Println("Running migrations...")
				if err := migrator.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
			}

			version, dirty, err := migrator.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations (destructive)")
	cmd.Flags().IntVar(&force, "force", 0, "force the schema version without running migrations")

	return cmd
}
