package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/thistle/pkg/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply migrations up to DB_MIGRATION_VERSION (or the latest)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, ctx, func(ms *database.MigrationService, db database.DB, name string) error {
				return ms.Migrate(db.SQL(), name)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			return withMigrations(cmd, ctx, func(ms *database.MigrationService, db database.DB, name string) error {
				return ms.Down(db.SQL(), name, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, ctx, func(ms *database.MigrationService, db database.DB, name string) error {
				v, dirty, err := ms.Version(db.SQL(), name)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{"version": v, "dirty": dirty})
			})
		},
	})

	return cmd
}

func withMigrations(cmd *cobra.Command, ctx *commandContext, fn func(ms *database.MigrationService, db database.DB, name string) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	defer ctx.syncLogger()

	db, err := database.Open(cmd.Context(), cfg.Database(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(database.NewMigrationService(logger, cfg.Migration()), db, cfg.DatabaseName)
}
