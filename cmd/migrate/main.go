// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"expenses-tracker/backend/internal/config"
	"expenses-tracker/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	backend := flag.String("backend", "", "Database backend: postgres or sqlite (default: STORAGE_BACKEND)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *backend == "" {
		*backend = cfg.StorageBackend
	}

	var target string
	switch *backend {
	case migrate.BackendPostgres:
		target = cfg.DatabaseURL
		if target == "" {
			fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
			os.Exit(1)
		}
	case migrate.BackendSQLite:
		target = cfg.SQLitePath
	default:
		fmt.Fprintf(os.Stderr, "backend %q has no migrations\n", *backend)
		os.Exit(1)
	}

	if err := migrate.Run(*backend, target, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			// Already at target version; success.
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
