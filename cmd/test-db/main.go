package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/parth-sh/backend-api/internal/config"
	"github.com/parth-sh/backend-api/internal/database"
	"github.com/parth-sh/backend-api/internal/session"
)

// check opens the configured database, which applies pending migrations,
// and reports what it finds. With cleanup set it also purges expired
// sessions.
func check(ctx context.Context, cfg *config.Config, cleanup bool, logger *slog.Logger) error {
	if cfg.Database.Type == "sqlite" {
		dir := filepath.Dir(cfg.Database.Path)
		if stat, err := os.Stat(dir); err != nil {
			logger.Warn("cannot access data directory", "dir", dir, "error", err)
		} else {
			logger.Info("data directory exists", "dir", dir, "mode", stat.Mode().String())
		}
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.AppliedMigrations(db)
	if err != nil {
		return err
	}
	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	logger.Info("migrations applied", "versions", versions)

	for _, table := range []string{"accounts", "sessions"} {
		var count int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return err
		}
		logger.Info("table ok", "table", table, "rows", count)
	}

	if cleanup {
		removed, err := session.NewSQLStore(db, logger).CleanupExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("expired sessions removed", "count", removed)
	}
	return nil
}

// loadConfig reads path, or the default location from the environment when
// no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Init()
	}
	return config.LoadConfig(path)
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default $BACKEND_CONFIG_DIR/app.yml)")
	cleanup := flag.Bool("cleanup", false, "Remove expired sessions")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	logger.Info("testing database initialization", "config", *configPath)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := check(context.Background(), cfg, *cleanup, logger); err != nil {
		logger.Error("database check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database check successful")
}
