package store

import (
    "embed"
    "errors"
    "fmt"
    "strings"

    "github.com/golang-migrate/migrate/v4"
    _ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
    "github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending up migration to the database at databaseURL.
func Migrate(databaseURL string) error {
    src, err := iofs.New(migrationsFS, "migrations")
    if err != nil {
        return fmt.Errorf("open migrations: %w", err)
    }
    m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
    if err != nil {
        return fmt.Errorf("init migrate: %w", err)
    }
    defer func() {
        _, _ = m.Close()
    }()

    if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
        return fmt.Errorf("migrate up: %w", err)
    }
    return nil
}

// migrateURL rewrites a postgres URL to the scheme registered by the pgx/v5 driver.
func migrateURL(databaseURL string) string {
    for _, prefix := range []string{"postgres://", "postgresql://"} {
        if strings.HasPrefix(databaseURL, prefix) {
            return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
        }
    }
    return databaseURL
}
