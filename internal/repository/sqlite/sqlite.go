// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// needs no C toolchain. The driver registers itself with database/sql under
// the name "sqlite" through the blank import below.
//
// The schema lives in migrations/*.sql, embedded into the binary and applied
// by goose when the database is opened.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a sql.DB connection pool and provides the directory repository.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// MemoryPath selects an in-memory database.
const MemoryPath = ":memory:"

// New opens the SQLite database at dbPath and brings its schema up to date.
//
// dbPath examples:
//   - "data/rustaceans.db" → file-based database
//   - ":memory:"           → in-memory database, private to one connection
//
// An in-memory database has exactly one connection. An open Session holds
// it, so every read blocks until that session is closed. Use it for tests
// and one-shot CLI runs, not behind the HTTP server.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own empty database, so the
	// pool must never grow past one connection.
	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the read API keep serving while a sync batch is writing.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the connection pool. Sessions must be closed first.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies every pending migration. It is safe to call repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{db.logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: selecting migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, "migrations"); err != nil {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose's printf-style output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}
