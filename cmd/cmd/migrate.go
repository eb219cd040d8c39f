package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"snitch/internal/config"
	"snitch/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long: `Manage database schema migrations.

The migration system tracks applied migrations in the schema_migrations
table and applies new migrations in sequential order. 'snitch serve' also
applies pending migrations on startup; this command is for running them
out of band.

Examples:
  # Apply all pending migrations
  snitch migrate up

  # Check migration status
  snitch migrate status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationManager(cmd.Context(), func(ctx context.Context, m *persistence.MigrationManager) error {
			if err := m.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Migrations applied successfully")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationManager(cmd.Context(), func(ctx context.Context, m *persistence.MigrationManager) error {
			status, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			if len(status) == 0 {
				fmt.Println("No migrations found")
				return nil
			}
			for _, s := range status {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%3d  %-8s %s\n", s.Version, state, s.Description)
			}
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrationManager(ctx context.Context, fn func(context.Context, *persistence.MigrationManager) error) error {
	db, err := connectDatabase(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, persistence.NewMigrationManager(db))
}
