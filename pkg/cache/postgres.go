package cache

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations/postgres
var postgresMigrationsFS embed.FS

// NewPostgres opens a PostgreSQL-backed Cache against dsn, applying
// embedded migrations before returning. The returned *sql.DB is the
// handle the Cache itself uses, returned so that callers (pkg/quota's
// PostgresLimiter) can share the same connection pool.
func NewPostgres(dsn string) (Cache, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: open postgres: %w", err)
	}

	if err := runPostgresMigrations(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("cache: postgres migrations: %w", err)
	}

	return &sqlCache{db: withReconnect(db, "pgx", dsn), ph: postgresPlaceholder}, db, nil
}

func runPostgresMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	source, err := iofs.New(postgresMigrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return source.Close()
}
