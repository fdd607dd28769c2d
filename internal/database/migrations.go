package database

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all database migrations for the dialect
func GetMigrations(d Dialect) []Migration {
	if d == Postgres {
		return postgresMigrations
	}
	return sqliteMigrations
}

var postgresMigrations = []Migration{
	{
		Version:     1,
		Description: "Create accounts table",
		SQL: `CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_digest VARCHAR(255) NOT NULL,
			confirmed_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
	},
	{
		Version:     2,
		Description: "Create sessions table",
		SQL: `CREATE TABLE IF NOT EXISTS sessions (
			id_hash VARCHAR(64) PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
	},
	{
		Version:     3,
		Description: "Create session indexes",
		SQL: `CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`,
	},
}

var sqliteMigrations = []Migration{
	{
		Version:     1,
		Description: "Create accounts table",
		SQL: `CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_digest TEXT NOT NULL,
			confirmed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
	{
		Version:     2,
		Description: "Create sessions table",
		SQL: `CREATE TABLE IF NOT EXISTS sessions (
			id_hash TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,
	},
	{
		Version:     3,
		Description: "Create session indexes",
		SQL: `CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`,
	},
}

func createMigrationsTable(db *DB) error {
	query := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if db.Dialect == Postgres {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`
	}
	_, err := db.Exec(query)
	return err
}

// AppliedMigrations returns the set of migration versions already applied
func AppliedMigrations(db *DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return applied, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return applied, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// RunMigrations runs all pending migrations, each inside its own transaction
func RunMigrations(db *DB) error {
	logger := slog.With("component", "database")

	if err := createMigrationsTable(db); err != nil {
		return oops.Code("DB_MIGRATE_FAILED").With("step", "create schema_migrations").Wrap(err)
	}

	applied, err := AppliedMigrations(db)
	if err != nil {
		return oops.Code("DB_MIGRATE_FAILED").With("step", "read applied").Wrap(err)
	}

	for _, migration := range GetMigrations(db.Dialect) {
		if applied[migration.Version] {
			continue
		}

		logger.Info("applying migration", "version", migration.Version, "description", migration.Description)

		tx, err := db.Begin()
		if err != nil {
			return oops.Code("DB_MIGRATE_FAILED").With("version", migration.Version).Wrap(err)
		}

		for _, stmt := range strings.Split(migration.SQL, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return oops.Code("DB_MIGRATE_FAILED").
					With("version", migration.Version).
					Wrap(fmt.Errorf("apply %q: %w", migration.Description, err))
			}
		}

		if _, err := tx.Exec(db.Dialect.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), migration.Version); err != nil {
			tx.Rollback()
			return oops.Code("DB_MIGRATE_FAILED").With("version", migration.Version).Wrap(err)
		}

		if err := tx.Commit(); err != nil {
			return oops.Code("DB_MIGRATE_FAILED").With("version", migration.Version).Wrap(err)
		}
	}

	return nil
}
