// Package projection maps a decoded profile onto the people and
// people_channels tables.
//
// The projector is a pure function of its input: it never talks to the
// store, so the same UserRecord always yields the same Projection.
package projection

import (
	"fmt"
	"strings"

	"github.com/rustaceans-org/rustaceans-sync/internal/model"
)

// MarkdownRenderer turns the notes field into sanitized HTML.
type MarkdownRenderer interface {
	Render(src string) (string, error)
}

// Projection is the result of projecting one UserRecord.
//
// Entry is nil for a "removal-only" projection: the caller still clears the
// user's existing rows but inserts nothing.
type Projection struct {
	Entry    *model.DirectoryEntry
	Channels []model.ChannelMembership
}

// RemovalOnly reports whether nothing should be inserted.
func (p Projection) RemovalOnly() bool {
	return p.Entry == nil
}

// minIncludedFields is the smallest number of included fields (username
// counts as one) that still produces a people row.
const minIncludedFields = 2

type Projector struct {
	markdown MarkdownRenderer
}

func New(markdown MarkdownRenderer) *Projector {
	return &Projector{markdown: markdown}
}

// Project builds the DirectoryEntry and channel memberships for rec.
//
// Rules, applied in model.Fields order:
//   - absent fields are left out of the row (not written as NULL)
//   - twitter handles get a leading "@" unless empty or already prefixed
//   - notes are rendered from markdown to HTML and kept out of the blob
//   - every other searchable, non-empty string value adds value+"\n" to
//     the blob, except username, which search matches in its own column
func (p *Projector) Project(rec *model.UserRecord) (Projection, error) {
	entry := &model.DirectoryEntry{Username: rec.Username}
	var blob strings.Builder

	for _, field := range model.Fields {
		value, ok := rec.Lookup(field.Name)
		if !ok {
			continue
		}

		if s, isString := value.(string); isString {
			switch field.Name {
			case model.FieldTwitter:
				s = normalizeTwitter(s)
			case model.FieldNotes:
				html, err := p.markdown.Render(s)
				if err != nil {
					return Projection{}, fmt.Errorf("projecting %s: %w", rec.Username, err)
				}
				s = html
			}
			value = s

			if inBlob(field) && s != "" {
				blob.WriteString(s)
				blob.WriteByte('\n')
			}
		}

		entry.Columns = append(entry.Columns, model.Column{Name: field.Name, Value: value})
	}

	if len(entry.Columns) < minIncludedFields {
		return Projection{}, nil
	}
	entry.Blob = blob.String()

	return Projection{
		Entry:    entry,
		Channels: channels(rec.Username, rec.IRCChannels),
	}, nil
}

func inBlob(field model.Field) bool {
	return field.Searchable && field.Name != model.FieldNotes && field.Name != model.FieldUsername
}

func normalizeTwitter(handle string) string {
	if handle == "" || strings.HasPrefix(handle, "@") {
		return handle
	}
	return "@" + handle
}

func channels(username string, names []string) []model.ChannelMembership {
	var out []model.ChannelMembership
	for _, name := range names {
		if name == "" {
			continue
		}
		out = append(out, model.ChannelMembership{Person: username, Channel: name})
	}
	return out
}
