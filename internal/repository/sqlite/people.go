package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
	"github.com/rustaceans-org/rustaceans-sync/internal/repository"
)

var _ repository.DirectoryReader = (*DB)(nil)

const personColumns = `username, name, irc, show_avatar, email, discourse, reddit, twitter, blog, website, notes`

// searchWhere matches the search blob or the username. Both arguments are
// the same escaped LIKE pattern.
const searchWhere = `WHERE (blob LIKE ? ESCAPE '\' OR username LIKE ? ESCAPE '\')`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (*model.Person, error) {
	var (
		p                                   model.Person
		name, irc, email, discourse, reddit sql.NullString
		twitter, blog, website, notes       sql.NullString
		showAvatar                          sql.NullBool
	)
	err := row.Scan(
		&p.Username,
		&name,
		&irc,
		&showAvatar,
		&email,
		&discourse,
		&reddit,
		&twitter,
		&blog,
		&website,
		&notes,
	)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.IRC = irc.String
	p.ShowAvatar = showAvatar.Bool
	p.Email = email.String
	p.Discourse = discourse.String
	p.Reddit = reddit.String
	p.Twitter = twitter.String
	p.Blog = blog.String
	p.Website = website.String
	p.Notes = notes.String
	p.Channels = []string{}
	return &p, nil
}

// GetPerson returns one person and their channels.
// Returns apperror.ErrNotFound if no row exists for username.
func (db *DB) GetPerson(ctx context.Context, username string) (*model.Person, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE username = ?`, username)
	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("person", username)
		}
		return nil, fmt.Errorf("sqlite: getting person %s: %w", username, err)
	}

	if err := db.attachChannels(ctx, []*model.Person{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// Search returns people whose blob or username contains query, ignoring
// ASCII case.
// An empty query lists everyone. Results are ordered by username.
func (db *DB) Search(ctx context.Context, query string, opts repository.ListOptions) ([]model.Person, error) {
	pattern := likePattern(query)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people
		 `+searchWhere+`
		 ORDER BY username
		 LIMIT ? OFFSET ?`,
		pattern, pattern, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching people: %w", err)
	}
	defer rows.Close()

	var found []*model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning person: %w", err)
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating people: %w", err)
	}
	// Release the connection before the channel query; an in-memory
	// database has only one.
	rows.Close()

	if err := db.attachChannels(ctx, found); err != nil {
		return nil, err
	}

	people := make([]model.Person, 0, len(found))
	for _, p := range found {
		people = append(people, *p)
	}
	return people, nil
}

// ListChannelMembers returns the usernames in channel, sorted.
func (db *DB) ListChannelMembers(ctx context.Context, channel string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT person FROM people_channels WHERE channel = ? ORDER BY person`, channel)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing channel %s: %w", channel, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var person string
		if err := rows.Scan(&person); err != nil {
			return nil, fmt.Errorf("sqlite: scanning channel member: %w", err)
		}
		members = append(members, person)
	}
	return members, rows.Err()
}

// CountPeople returns the number of rows in people.
func (db *DB) CountPeople(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting people: %w", err)
	}
	return n, nil
}

// CountMatches returns how many people Search would find for query
// without pagination.
func (db *DB) CountMatches(ctx context.Context, query string) (int, error) {
	pattern := likePattern(query)
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM people `+searchWhere, pattern, pattern).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting matches: %w", err)
	}
	return n, nil
}

// attachChannels loads the channel lists of people in one query, keeping
// the order the channels were inserted in.
func (db *DB) attachChannels(ctx context.Context, people []*model.Person) error {
	if len(people) == 0 {
		return nil
	}

	byName := make(map[string]*model.Person, len(people))
	args := make([]any, 0, len(people))
	for _, p := range people {
		byName[p.Username] = p
		args = append(args, p.Username)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

	rows, err := db.conn.QueryContext(ctx,
		`SELECT person, channel FROM people_channels
		 WHERE person IN (`+placeholders+`)
		 ORDER BY rowid`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var person, channel string
		if err := rows.Scan(&person, &channel); err != nil {
			return fmt.Errorf("sqlite: scanning channel: %w", err)
		}
		if p, ok := byName[person]; ok {
			p.Channels = append(p.Channels, channel)
		}
	}
	return rows.Err()
}

func likePattern(query string) string {
	return "%" + escapeLike(query) + "%"
}

// escapeLike escapes the LIKE wildcards in s so it matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
