package main

// Apply database migrations:
//   go run ./cmd/migrate
//   go run ./cmd/migrate -status
//   go run ./cmd/migrate -down

import (
	"context"
	"flag"
	"fmt"
	"os"

	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/storage/db"
	"stackdocs-backend/internal/shared/telemetry"
)

func main() {
	status := flag.Bool("status", false, "print the applied schema version and exit")
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	if err := run(context.Background(), config.Load(), *status, *down); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, statusOnly, down bool) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultOptions(db.ProfileMigrate)))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sqlDB.Close()

	switch {
	case statusOnly:
	case down:
		if err := db.RollbackMigration(ctx, sqlDB); err != nil {
			return err
		}
	default:
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return err
		}
	}

	version, err := db.MigrationVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	telemetry.Info("migrate.done", map[string]any{"schema_version": version, "status_only": statusOnly, "down": down})
	return nil
}
