package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"notecanvas/infrastructure/config"
	"notecanvas/infrastructure/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if cfg.StoreDriver != config.StorePostgres {
			return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %q", config.StorePostgres, cfg.StoreDriver)
		}
		return runMigrate(cmd.Context(), cfg.DatabaseURL, postgres.Direction(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(ctx context.Context, dsn string, dir postgres.Direction) error {
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(db.DB, dir); err != nil {
		return err
	}
	fmt.Printf("migrations %s: done\n", dir)
	return nil
}
