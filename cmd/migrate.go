package cmd

import (
	"context"
	"log"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/database"
	"github.com/frahmantamala/payapp/pkg/logger"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run db migration files under db/migrations/<driver>",
	}
	migrateRollback bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "db/migrations", "sql migrations root; files are read from its <driver> subdirectory")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// sqlite schemas come from the datamodels
	if cfg.Database.DriverName() == "sqlite" {
		db, err := database.Open(cfg.Database, logger.LoggerWrapper())
		if err != nil {
			log.Fatalf("failed to open sqlite database: %v", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("auto migrate: %v", err)
		}
		logger.LoggerWrapper().Info("sqlite schema migrated from datamodels")
		return nil
	}

	db, err := goose.OpenDBWithDriver(gooseDriver(cfg.Database), cfg.Database.Source)
	if err != nil {
		log.Fatalf("goose: failed to open DB: %v\n", err)
	}
	defer db.Close()
	goose.SetTableName("schema_migrations")

	command := "up"
	if migrateRollback {
		command = "down"
	}
	if err := goose.RunContext(ctx, command, db, migrationsDir(migrateDir, cfg.Database)); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}

	return nil
}

func gooseDriver(cfg internal.DatabaseConfig) string {
	switch cfg.DriverName() {
	case "postgres":
		return "pgx"
	default:
		return cfg.DriverName()
	}
}

// migrationsDir selects the per-dialect sql set, e.g. db/migrations/mysql.
func migrationsDir(root string, cfg internal.DatabaseConfig) string {
	return filepath.Join(root, cfg.DriverName())
}
