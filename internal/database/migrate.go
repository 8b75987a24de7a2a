package database

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration sets. Each service owns its tables and its own version table, so
// both may share one database.
const (
	IdentityMigrations = "identity"
	PostsMigrations    = "posts"
)

func NewMigrator(databaseURL, set string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/"+set)
	if err != nil {
		return nil, fmt.Errorf("migration source %s: %w", set, err)
	}

	dsn, err := withMigrationsTable(databaseURL, "schema_migrations_"+set)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending migration of set. Up to date is not an error.
func RunMigrations(databaseURL, set string) error {
	m, err := NewMigrator(databaseURL, set)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run %s migrations: %w", set, err)
	}
	return nil
}

func withMigrationsTable(databaseURL, table string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("database url must use postgres:// scheme, got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
