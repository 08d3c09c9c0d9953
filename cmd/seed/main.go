package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/teachme/backend/internal/config"
	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/gamification"
	"github.com/teachme/backend/internal/logger"
)

// seed upserts the badge and achievement catalog. It is idempotent and safe
// to run on every deploy.
func main() {
	catalogPath := flag.String("catalog", "", "path to a catalog YAML file (defaults to ACHIEVEMENT_CATALOG, then the built-in catalog)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		Type: cfg.DatabaseType,
		URL:  cfg.DatabaseURL,
		Path: cfg.DatabasePath,
	})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	path := *catalogPath
	if path == "" {
		path = cfg.AchievementCatalog
	}

	var cat *gamification.Catalog
	if path != "" {
		cat, err = gamification.LoadCatalog(path)
	} else {
		cat, err = gamification.DefaultCatalog()
	}
	if err != nil {
		log.Fatal("failed to load catalog", "path", path, "error", err)
	}

	if err := gamification.SeedCatalog(ctx, db, cat); err != nil {
		log.Fatal("failed to seed catalog", "error", err)
	}
	log.Info("catalog seeded", "badges", len(cat.Badges), "achievements", len(cat.Achievements))
}
