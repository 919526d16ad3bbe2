// pkg/db/migrate.go
package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate applies the embedded schema migrations for the connection's driver.
// The database handle is not closed; the caller keeps ownership.
func Migrate(conn *sqlx.DB) error {
	driverName := conn.DriverName()

	src, err := iofs.New(migrationFS, "migrations/"+driverName)
	if err != nil {
		return fmt.Errorf("failed to open migrations for %s: %w", driverName, err)
	}

	var target database.Driver
	switch driverName {
	case DriverPostgres:
		target, err = postgres.WithInstance(conn.DB, &postgres.Config{})
	case DriverSQLite:
		target, err = sqlite3.WithInstance(conn.DB, &sqlite3.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", driverName, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, target)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
