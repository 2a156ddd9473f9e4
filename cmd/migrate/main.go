package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	action := flag.String("action", "up", "Migration action: up, down, version, force")
	version := flag.Int("version", 0, "Target version (for force action)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	pool, err := database.NewPool(context.Background(), database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer pool.Close()

	log.Println("Connected to database")

	dbName, err := database.DatabaseName(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	// golang-migrate works on database/sql
	migrator, err := database.NewMigrator(database.SQLDB(pool), dbName)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	// Execute action
	switch *action {
	case "up":
		log.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		log.Println("Migrations completed successfully")

	case "down":
		log.Println("Rolling back last migration...")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		log.Println("Migration rolled back successfully")

	case "version":
		st, err := migrator.Status()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		switch {
		case st.Dirty:
			log.Printf("Current version: %d of %d (DIRTY - migration incomplete)\n", st.Version, st.Latest)
		case st.Pending():
			log.Printf("Current version: %d of %d (pending migrations)\n", st.Version, st.Latest)
		default:
			log.Printf("Current version: %d (up to date)\n", st.Version)
		}

	case "force":
		if *version == 0 {
			return fmt.Errorf("version flag is required for force action")
		}
		log.Printf("Forcing migration to version %d...\n", *version)
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		log.Println("Migration version forced successfully")

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force)", *action)
	}

	return nil
}
