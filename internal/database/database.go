package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/samber/oops"

	"github.com/parth-sh/backend-api/internal/config"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB is a connection pool paired with the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured database, verifies the connection and
// applies pending migrations.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch cfg.Type {
	case "postgres":
		db, err = openPostgres(cfg)
	case "sqlite", "":
		db, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, oops.Code("DB_PING_FAILED").With("type", cfg.Type).Wrap(err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database ready", "component", "database", "type", db.Dialect)
	return db, nil
}

func openPostgres(cfg config.DatabaseConfig) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	slog.Info("opening postgres connection", "component", "database",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Name, "user", cfg.User)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("type", "postgres").Wrap(err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &DB{DB: db, Dialect: Postgres}, nil
}

func openSQLite(cfg config.DatabaseConfig) (*DB, error) {
	dataDir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, oops.Code("DB_DATA_DIR_FAILED").With("dir", dataDir).Wrap(err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", cfg.Path)
	slog.Info("opening sqlite database", "component", "database", "path", cfg.Path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("type", "sqlite").Wrap(err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DB{DB: db, Dialect: SQLite}, nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure from
// either driver.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
