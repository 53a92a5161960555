// Package repository declares the storage interfaces the service layer
// depends on. internal/repository/sqlite implements them.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustaceans-org/rustaceans-sync/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// SessionOpener hands out storage sessions. A batch reconciliation opens
// exactly one session, uses it for every user, and closes it at the end.
type SessionOpener interface {
	OpenSession(ctx context.Context) (DirectorySession, error)
}

// DirectorySession is one open handle on the directory store.
type DirectorySession interface {
	// Write replaces everything stored for username: it deletes the
	// people and people_channels rows, then inserts entry (when non-nil)
	// and channels. Individual statement failures are reported in the
	// WriteReport and do not stop later statements; the error return is
	// reserved for failures of the session itself.
	Write(ctx context.Context, username string, entry *model.DirectoryEntry, channels []model.ChannelMembership) (*WriteReport, error)
	Close() error
}

// DirectoryReader is the read side used by the HTTP API.
type DirectoryReader interface {
	GetPerson(ctx context.Context, username string) (*model.Person, error)
	Search(ctx context.Context, query string, opts ListOptions) ([]model.Person, error)
	ListChannelMembers(ctx context.Context, channel string) ([]string, error)
	CountPeople(ctx context.Context) (int, error)
	// CountMatches counts the people Search finds for query, ignoring paging.
	CountMatches(ctx context.Context, query string) (int, error)
}

// Statement is one executed SQL statement and its outcome.
type Statement struct {
	SQL  string
	Args []any
	Err  error
}

// StatementError wraps the failure of a single statement in a write batch.
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %q: %v", e.SQL, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// WriteReport lists the statements of one Write, in execution order.
type WriteReport struct {
	Username   string
	Statements []Statement
}

// Failed returns the statements that did not succeed.
func (r *WriteReport) Failed() []Statement {
	var failed []Statement
	for _, s := range r.Statements {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Err joins every statement failure into one error, or returns nil.
func (r *WriteReport) Err() error {
	var errs []error
	for _, s := range r.Failed() {
		errs = append(errs, &StatementError{SQL: s.SQL, Err: s.Err})
	}
	return errors.Join(errs...)
}
