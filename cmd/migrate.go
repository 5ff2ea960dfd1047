package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/psds-microservice/agri-support-service/internal/config"
	"github.com/psds-microservice/agri-support-service/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func postgresConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return nil, errors.New("migrate: STORE_DRIVER is not postgres")
	}
	return cfg, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := postgresConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Println("migrate up: ok")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, err := postgresConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateStatus(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	return nil
}
