package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustaceans-org/rustaceans-sync/internal/model"
	"github.com/rustaceans-org/rustaceans-sync/internal/repository"
)

var (
	_ repository.SessionOpener    = (*DB)(nil)
	_ repository.DirectorySession = (*Session)(nil)
)

const (
	deletePersonSQL   = `DELETE FROM people WHERE username = ?`
	deleteChannelsSQL = `DELETE FROM people_channels WHERE person = ?`
	insertChannelSQL  = `INSERT INTO people_channels (person, channel) VALUES (?, ?)`
)

// Session pins one pooled connection for the duration of a sync batch.
type Session struct {
	conn   *sql.Conn
	logger *slog.Logger
}

// OpenSession reserves a connection from the pool. The caller must Close it.
func (db *DB) OpenSession(ctx context.Context) (repository.DirectorySession, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening session: %w", err)
	}
	return &Session{conn: conn, logger: db.logger}, nil
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Write replaces the stored rows for username.
//
// The statements run in this order inside one transaction:
//
//  1. DELETE FROM people
//  2. DELETE FROM people_channels
//  3. INSERT INTO people           (only when entry != nil)
//  4. INSERT INTO people_channels  (one per membership)
//
// A failing statement is recorded and logged, and the batch carries on with
// the next one. The transaction is committed at the end either way, so
// readers see the old rows or the new rows but never the gap in between.
func (s *Session) Write(ctx context.Context, username string, entry *model.DirectoryEntry, channels []model.ChannelMembership) (*repository.WriteReport, error) {
	report := &repository.WriteReport{Username: username}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("sqlite: beginning write for %s: %w", username, err)
	}

	exec := func(query string, args ...any) {
		_, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			s.logger.Error("statement failed",
				slog.String("username", username),
				slog.String("sql", query),
				slog.String("error", err.Error()),
			)
		}
		report.Statements = append(report.Statements, repository.Statement{SQL: query, Args: args, Err: err})
	}

	exec(deletePersonSQL, username)
	exec(deleteChannelsSQL, username)

	if entry != nil {
		query, args := insertPersonStatement(entry)
		exec(query, args...)

		for _, ch := range channels {
			exec(insertChannelSQL, ch.Person, ch.Channel)
		}
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("sqlite: committing write for %s: %w", username, err)
	}
	return report, nil
}

// insertPersonStatement builds the INSERT for exactly the included
// columns plus blob. Column names come from model.Fields, never from user
// input, so they can be spliced into the SQL text.
func insertPersonStatement(entry *model.DirectoryEntry) (string, []any) {
	names := make([]string, 0, len(entry.Columns)+1)
	args := make([]any, 0, len(entry.Columns)+1)
	for _, c := range entry.Columns {
		names = append(names, c.Name)
		args = append(args, c.Value)
	}
	names = append(names, "blob")
	args = append(args, entry.Blob)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	query := fmt.Sprintf("INSERT INTO people (%s) VALUES (%s)", strings.Join(names, ", "), placeholders)
	return query, args
}
