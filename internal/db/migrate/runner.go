// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"expenses-tracker/backend/internal/db"
)

// Backends with embedded migrations.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Run applies the migrations for backend in the given direction.
// For postgres, target is the DATABASE_URL; for sqlite, the database file path.
// direction must be "up" or "down". Already being at the target version is not an error.
func Run(backend, target, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	target = strings.TrimSpace(target)

	var databaseURL string
	switch backend {
	case BackendPostgres:
		if target == "" {
			return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		}
		databaseURL = target
	case BackendSQLite:
		if target == "" {
			return errors.New("SQLITE_PATH is not set")
		}
		databaseURL = "sqlite://" + target
	default:
		return fmt.Errorf("unknown migration backend %q", backend)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations/"+backend)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, databaseURL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}
