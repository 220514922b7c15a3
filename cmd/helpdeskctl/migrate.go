package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/config"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/persistence"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations to POSTGRES_DSN",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dir") {
			cfg.Postgres.MigrationsDir = migrationsDir
		}
		logger := newLogger()
		defer logger.Sync() //nolint:errcheck

		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if !pg.Enabled() {
			return errors.New("POSTGRES_DSN is not set")
		}

		applied, err := persistence.RunMigrations(cmd.Context(), pg.Pool, cfg.Postgres.MigrationsDir, logger)
		if err != nil {
			return err
		}
		logger.Info("migrations complete", zap.Int("applied", applied))
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding *.sql migrations")
	rootCmd.AddCommand(migrateCmd)
}
