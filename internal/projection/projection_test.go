package projection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustaceans-org/rustaceans-sync/internal/markdown"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
)

func str(s string) *string { return &s }

// fakeRenderer wraps notes in a paragraph so the rendered value is easy
// to recognise.
type fakeRenderer struct {
	err error
}

func (f fakeRenderer) Render(src string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "<p>" + src + "</p>", nil
}

func columnNames(e *model.DirectoryEntry) []string {
	names := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		names = append(names, c.Name)
	}
	return names
}

func TestProject_EndToEndRecord(t *testing.T) {
	p := New(fakeRenderer{})
	rec := &model.UserRecord{
		Username:    "alice",
		IRC:         str("alice_irc"),
		Twitter:     str("alice"),
		IRCChannels: []string{"#rust", "#wg-net"},
	}

	got, err := p.Project(rec)
	require.NoError(t, err)
	require.False(t, got.RemovalOnly())

	assert.Equal(t, []string{"username", "irc", "twitter"}, columnNames(got.Entry))
	tw, _ := got.Entry.Value("twitter")
	assert.Equal(t, "@alice", tw)
	assert.Equal(t, "alice_irc\n@alice\n", got.Entry.Blob)
	assert.Equal(t, []model.ChannelMembership{
		{Person: "alice", Channel: "#rust"},
		{Person: "alice", Channel: "#wg-net"},
	}, got.Channels)
}

func TestProject_Twitter(t *testing.T) {
	tests := []struct {
		name    string
		twitter *string
		want    any
		present bool
	}{
		{name: "bare handle gets prefix", twitter: str("foo"), want: "@foo", present: true},
		{name: "prefixed handle unchanged", twitter: str("@foo"), want: "@foo", present: true},
		{name: "empty handle stays empty", twitter: str(""), want: "", present: true},
		{name: "absent handle omitted", twitter: nil, present: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &model.UserRecord{Username: "u", Name: str("U"), Twitter: tt.twitter}
			got, err := New(fakeRenderer{}).Project(rec)
			require.NoError(t, err)

			v, ok := got.Entry.Value("twitter")
			assert.Equal(t, tt.present, ok)
			if tt.present {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}

func TestProject_Blob(t *testing.T) {
	rec := &model.UserRecord{
		Username: "someone",
		Name:     str("A"),
		Email:    str("b@c"),
	}

	got, err := New(fakeRenderer{}).Project(rec)
	require.NoError(t, err)
	assert.Equal(t, "A\nb@c\n", got.Entry.Blob)
}

func TestProject_BlobFieldOrderAndExclusions(t *testing.T) {
	show := true
	rec := &model.UserRecord{
		Username:   "someone",
		Website:    str("https://w"),
		Name:       str("N"),
		ShowAvatar: &show,
		Reddit:     str(""),
		Notes:      str("secret notes"),
		Blog:       str("https://b"),
	}

	got, err := New(fakeRenderer{}).Project(rec)
	require.NoError(t, err)

	// Field-list order, no empty values, no show_avatar, no notes.
	assert.Equal(t, "N\nhttps://b\nhttps://w\n", got.Entry.Blob)
	assert.Equal(t,
		[]string{"username", "name", "show_avatar", "reddit", "blog", "website", "notes"},
		columnNames(got.Entry))

	avatar, _ := got.Entry.Value("show_avatar")
	assert.Equal(t, true, avatar)
	notes, _ := got.Entry.Value("notes")
	assert.Equal(t, "<p>secret notes</p>", notes)
}

func TestProject_RemovalOnly(t *testing.T) {
	tests := []struct {
		name string
		rec  *model.UserRecord
	}{
		{name: "username only", rec: &model.UserRecord{Username: "ghost"}},
		{name: "channels do not count as a field", rec: &model.UserRecord{
			Username:    "ghost",
			IRCChannels: []string{"#rust"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(fakeRenderer{}).Project(tt.rec)
			require.NoError(t, err)
			assert.True(t, got.RemovalOnly())
			assert.Empty(t, got.Channels)
		})
	}
}

func TestProject_SingleOptionalFieldIsEnough(t *testing.T) {
	show := false
	got, err := New(fakeRenderer{}).Project(&model.UserRecord{Username: "u", ShowAvatar: &show})
	require.NoError(t, err)
	require.False(t, got.RemovalOnly())
	assert.Equal(t, "", got.Entry.Blob)
}

func TestProject_SkipsEmptyChannelNames(t *testing.T) {
	rec := &model.UserRecord{
		Username:    "u",
		Name:        str("U"),
		IRCChannels: []string{"#a", "", "#b"},
	}
	got, err := New(fakeRenderer{}).Project(rec)
	require.NoError(t, err)
	assert.Equal(t, []model.ChannelMembership{
		{Person: "u", Channel: "#a"},
		{Person: "u", Channel: "#b"},
	}, got.Channels)
}

func TestProject_Idempotent(t *testing.T) {
	show := true
	rec := &model.UserRecord{
		Username:    "alice",
		Name:        str("Alice"),
		ShowAvatar:  &show,
		Twitter:     str("alice"),
		Notes:       str("Hello **world**\n\n<script>x</script>"),
		IRCChannels: []string{"#rust"},
	}
	p := New(markdown.New())

	first, err := p.Project(rec)
	require.NoError(t, err)
	second, err := p.Project(rec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// The record itself is left untouched.
	assert.Equal(t, "alice", *rec.Twitter)
}

func TestProject_RenderError(t *testing.T) {
	boom := errors.New("boom")
	rec := &model.UserRecord{Username: "u", Notes: str("x")}

	_, err := New(fakeRenderer{err: boom}).Project(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
