package main

// Run database migrations:
//   go run ./cmd/migrate            apply all pending migrations
//   go run ./cmd/migrate -to 1      apply up to version 1
//   go run ./cmd/migrate -down      revert the latest migration

import (
	"context"
	"flag"
	"log"
	"os"

	"talentpool-backend/internal/shared/config"
	"talentpool-backend/internal/shared/storage/db"
)

func main() {
	to := flag.Int64("to", 0, "target schema version (0 applies everything)")
	down := flag.Bool("down", false, "revert the latest migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(1)
	}
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if *down {
		err = db.Rollback(ctx, sqlDB)
	} else {
		err = db.MigrateTo(ctx, sqlDB, *to)
	}
	if err != nil {
		log.Printf("migration failed: %v", err)
		os.Exit(1)
	}
}
