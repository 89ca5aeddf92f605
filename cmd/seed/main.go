package main

import (
	"context"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"quill/api/internal/app"
	"quill/api/internal/config"
	"quill/api/internal/seed"
	"quill/api/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUILL_CONFIG"), "path to a TOML config file")
	reset := flag.Bool("reset", false, "roll back every migration before seeding")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("[seed] failed to load config: %v", err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatalf("[seed] invalid logging config: %v", err)
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPool)
	if err != nil {
		log.Fatalf("[seed] database connection failed: %v", err)
	}
	defer db.Close()

	if *reset {
		log.Warn("[seed] -reset: dropping all data")
		if err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("[seed] rollback failed: %v", err)
		}
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("[seed] migrations failed: %v", err)
	}

	if err := seed.Run(ctx, app.New(store.NewPostgresStore(db), nil)); err != nil {
		log.Fatalf("[seed] %v", err)
	}
}
