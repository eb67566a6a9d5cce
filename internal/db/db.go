package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "shelter.db"

// Drivers understood by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type Config struct {
	Workspace string
	// Driver selects the database/sql driver; empty means sqlite in the workspace.
	Driver string
	// DSN is required for postgres and ignored for sqlite.
	DSN string
}

// DB wraps *sql.DB with the dialect needed to rewrite placeholders and
// choose row-locking clauses.
type DB struct {
	*sql.DB
	Driver string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".shelter", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".shelter")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the configured database. SQLite runs with foreign keys on,
// immediate write transactions and a busy timeout so concurrent writers queue
// instead of failing.
func Open(cfg Config) (*DB, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath(cfg.Workspace))
		conn, err := sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, err
		}
		return &DB{DB: conn, Driver: DriverSQLite}, nil
	case DriverPostgres, "postgres":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		conn, err := sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &DB{DB: conn, Driver: DriverPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// Rebind rewrites '?' placeholders into '$n' for postgres.
func (d *DB) Rebind(query string) string {
	if d == nil || d.Driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

// ForUpdate returns the row-locking suffix for SELECTs inside a write
// transaction. SQLite already holds the write lock from BEGIN IMMEDIATE.
func (d *DB) ForUpdate() string {
	if d != nil && d.Driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '?' && !inQuote {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
