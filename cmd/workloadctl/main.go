// Command workloadctl runs schema migrations and seeding outside the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/config"
	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/database/migrate"
	"github.com/workloadinsights/backend/internal/logging"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "workloadctl",
	Short:         "Administrative tasks for the workload insights backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		logger, err = logging.New(cfg.Env, cfg.LogLevel)
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or roll back the embedded SQL migrations",
	Long: `Apply or roll back the embedded SQL migrations.

  up   - apply every pending migration
  down - roll back all migrations (drops the schema)`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := args[0]
		if err := migrate.Run(cfg.MigrateURL(), direction); err != nil {
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		logger.Info("migrations applied", zap.String("direction", direction))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the initial admin and the default categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := database.SeedAdmin(db, cfg, logger); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		return database.SeedCategories(db, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
