package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending PostgreSQL migrations and print the schema version.
The server also migrates on startup; this command is for deployments that
migrate ahead of a rollout. Use --down to roll back the latest migration.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("down", false, "Roll back the most recent migration instead of applying")
	migrateCmd.Flags().Bool("status", false, "Only print the schema version")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	down := mustGetBool(cmd, "down")
	statusOnly := mustGetBool(cmd, "status")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch {
	case statusOnly:
	case down:
		fmt.Println("Rolling back the latest migration...")
		if err := pool.MigrateDown(ctx); err != nil {
			return err
		}
	default:
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
	}

	status, err := pool.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d (latest %d)\n", status.Version, status.Latest)
	if status.Dirty {
		fmt.Println("Schema is dirty: a migration failed halfway and needs manual repair")
	} else if status.Pending() {
		fmt.Printf("Pending migrations: %d\n", status.Latest-status.Version)
	}
	return nil
}
