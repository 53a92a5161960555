// Package model defines the data structures used throughout the application.
package model

// UserRecord is one decoded profile file from the rustaceans repository.
//
// Every optional field is a pointer so "absent" (nil) can be told apart
// from "present but empty" (""). The projector omits absent fields from the
// stored row entirely.
//
// Username is never read from the file: the reconciler stamps it with the
// handle taken from the file name.
type UserRecord struct {
	Username    string   `json:"-"`
	Name        *string  `json:"name"`
	IRC         *string  `json:"irc"`
	ShowAvatar  *bool    `json:"show_avatar"`
	Email       *string  `json:"email"`
	Discourse   *string  `json:"discourse"`
	Reddit      *string  `json:"reddit"`
	Twitter     *string  `json:"twitter"`
	Blog        *string  `json:"blog"`
	Website     *string  `json:"website"`
	Notes       *string  `json:"notes"`
	IRCChannels []string `json:"irc_channels"`
}

// Field describes one column of the people table.
type Field struct {
	Name       string
	Searchable bool // contributes to the blob column
}

// Field names, in column order.
const (
	FieldUsername   = "username"
	FieldName       = "name"
	FieldIRC        = "irc"
	FieldShowAvatar = "show_avatar"
	FieldEmail      = "email"
	FieldDiscourse  = "discourse"
	FieldReddit     = "reddit"
	FieldTwitter    = "twitter"
	FieldBlog       = "blog"
	FieldWebsite    = "website"
	FieldNotes      = "notes"
)

// Fields is the fixed, ordered list of profile columns. The order decides
// column order in generated SQL and the order values are appended to the
// blob. irc_channels and blob are not part of it.
var Fields = []Field{
	{Name: FieldUsername, Searchable: true},
	{Name: FieldName, Searchable: true},
	{Name: FieldIRC, Searchable: true},
	{Name: FieldShowAvatar, Searchable: false},
	{Name: FieldEmail, Searchable: true},
	{Name: FieldDiscourse, Searchable: true},
	{Name: FieldReddit, Searchable: true},
	{Name: FieldTwitter, Searchable: true},
	{Name: FieldBlog, Searchable: true},
	{Name: FieldWebsite, Searchable: true},
	{Name: FieldNotes, Searchable: true},
}

// Lookup returns the value of the named field and whether it is present.
// The value is a string for every field except show_avatar, which is a bool.
func (r *UserRecord) Lookup(field string) (any, bool) {
	var s *string
	switch field {
	case FieldUsername:
		return r.Username, true
	case FieldShowAvatar:
		if r.ShowAvatar == nil {
			return nil, false
		}
		return *r.ShowAvatar, true
	case FieldName:
		s = r.Name
	case FieldIRC:
		s = r.IRC
	case FieldEmail:
		s = r.Email
	case FieldDiscourse:
		s = r.Discourse
	case FieldReddit:
		s = r.Reddit
	case FieldTwitter:
		s = r.Twitter
	case FieldBlog:
		s = r.Blog
	case FieldWebsite:
		s = r.Website
	case FieldNotes:
		s = r.Notes
	}
	if s == nil {
		return nil, false
	}
	return *s, true
}

// Column is one included column of a DirectoryEntry.
type Column struct {
	Name  string
	Value any // string, or bool for show_avatar
}

// DirectoryEntry is the projected people row for one user: exactly the
// columns present in the source record, in Fields order, plus the derived
// search blob.
type DirectoryEntry struct {
	Username string
	Columns  []Column
	Blob     string
}

// Value returns the value stored for column name, if included.
func (e *DirectoryEntry) Value(name string) (any, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// ChannelMembership is one people_channels row.
type ChannelMembership struct {
	Person  string `json:"person"`
	Channel string `json:"channel"`
}

// Person is the read model of a stored people row, as served by the HTTP
// API. Empty strings mean the column was never set.
type Person struct {
	Username   string   `json:"username"`
	Name       string   `json:"name,omitempty"`
	IRC        string   `json:"irc,omitempty"`
	ShowAvatar bool     `json:"show_avatar"`
	Email      string   `json:"email,omitempty"`
	Discourse  string   `json:"discourse,omitempty"`
	Reddit     string   `json:"reddit,omitempty"`
	Twitter    string   `json:"twitter,omitempty"`
	Blog       string   `json:"blog,omitempty"`
	Website    string   `json:"website,omitempty"`
	Notes      string   `json:"notes,omitempty"` // rendered HTML
	Channels   []string `json:"irc_channels"`
}
