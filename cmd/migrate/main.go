package main

// Apply the document registry and batch schema:
//   go run ./cmd/migrate

import (
	"context"
	"os"
	"time"

	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/storage/db"
	"docrecon-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	start := time.Now()
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	version, err := db.MigrationVersion(ctx, sqlDB)
	if err != nil {
		telemetry.Warn("migrate.version_unknown", map[string]any{"error": err.Error()})
	}
	telemetry.Info("migrate.complete", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"version":     version,
	})
}
