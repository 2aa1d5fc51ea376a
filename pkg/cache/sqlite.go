package cache

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
)

//go:embed migrations/sqlite
var sqliteMigrationsFS embed.FS

// NewSQLite opens (creating if necessary) a SQLite-backed Cache at path,
// applying embedded migrations before returning.
func NewSQLite(path string) (Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// SQLite only tolerates a single writer at a time; a lone connection
	// avoids SQLITE_BUSY errors under the gateway's concurrent request model.
	db.SetMaxOpenConns(1)

	if err := runSQLiteMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: sqlite migrations: %w", err)
	}

	return &sqlCache{db: withReconnect(db, "sqlite3", path), ph: sqlitePlaceholder}, nil
}

func runSQLiteMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	source, err := iofs.New(sqliteMigrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return source.Close()
}
