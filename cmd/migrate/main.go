// Command migrate manages the schema and refresh-token hygiene.
//
//	migrate up            apply pending migrations
//	migrate down [N]      roll back N migrations (all when N is omitted)
//	migrate version       print the applied version
//	migrate sweep         delete refresh tokens revoked and expired past the retention window
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/database"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up | down [N] | version | sweep")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	_ = godotenv.Load()
	cfg := config.LoadDatabase()

	db, err := database.Open(cfg.DSN(), cfg.DBPool)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("up: %v", err)
		}
	case "down":
		steps := 0
		if len(os.Args) > 2 {
			if steps, err = strconv.Atoi(os.Args[2]); err != nil || steps < 1 {
				log.Fatalf("down: N must be a positive integer")
			}
		}
		if err := database.MigrateDown(db, steps); err != nil {
			log.Fatalf("down: %v", err)
		}
	case "version":
		v, dirty, err := database.MigrationVersion(db)
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	case "sweep":
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := repository.NewTokenRepo(db).Sweep(ctx, time.Now().Add(-cfg.TokenRetention))
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		log.Printf("sweep: deleted %d refresh token(s)", n)
	default:
		usage()
	}
}
