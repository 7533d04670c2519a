package main

import (
	"log"
	"os"

	"github.com/safar/go-shop-settlement/internal/config"
	"github.com/safar/go-shop-settlement/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath, direction); err != nil {
		log.Fatalf("Run migrations: %v", err)
	}

	log.Printf("Successfully ran migrations %s from %s", direction, cfg.Database.MigrationsPath)
}
