package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/color-report-engine/internal/app"
	"github.com/tbourn/color-report-engine/internal/repo"
)

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Applies the schema for every engine table and records the schema
version. The API server refuses to start until this has been run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.OpenDB(c.cfg)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			}()

			if err := repo.AutoMigrate(db.WithContext(cmd.Context())); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (%s)\n", repo.SchemaVersion, c.cfg.DB.Driver)
			return nil
		},
	}
}
