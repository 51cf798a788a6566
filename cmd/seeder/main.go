// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
)

var seedFiles = []string{
	"schema.sql",
	"users.sql",
}

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, logger.ParseLevel(cfg.Log.Level))

	dir := os.Getenv("SEED_DIR")
	if dir == "" {
		dir = "seed"
	}
	if err := seed(context.Background(), cfg.Database, dir, log); err != nil {
		log.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	log.Info("database seeding completed")
}

func seed(ctx context.Context, cfg config.DatabaseConfig, dir string, log *slog.Logger) error {
	database, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	for _, name := range seedFiles {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if _, err := database.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", path, err)
		}
		log.Info("seeded", "file", path)
	}
	return nil
}
