package postgres

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending goose migration in ./migrations against db,
// the single source of truth for schema evolution (cmd/jobmon-migrate).
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return jobmonerrors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return jobmonerrors.Wrap(err, "apply migrations")
	}
	return nil
}

// MigrateDown rolls back exactly one migration, used by operators rehearsing
// a rollback before a production deploy.
func MigrateDown(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return jobmonerrors.Wrap(err, "set goose dialect")
	}
	if err := goose.Down(db, "migrations"); err != nil {
		return jobmonerrors.Wrap(err, "roll back migration")
	}
	return nil
}
