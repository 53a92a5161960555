package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

// Directory is the read side of the directory. *service.DirectoryService
// satisfies it.
type Directory interface {
	Search(ctx context.Context, query string, limit, offset int) (*service.PeoplePage, error)
	GetPerson(ctx context.Context, username string) (*model.Person, error)
	ChannelMembers(ctx context.Context, channel string) ([]string, error)
}

var _ Directory = (*service.DirectoryService)(nil)

// PeopleHandler serves the public JSON API over the directory.
type PeopleHandler struct {
	directory Directory
	logger    *slog.Logger
}

func NewPeopleHandler(directory Directory, logger *slog.Logger) *PeopleHandler {
	return &PeopleHandler{directory: directory, logger: logger}
}

// HandleSearch lists people matching ?q=, paginated with ?limit= and ?offset=.
//
// HTTP: GET /api/people?q=rust&limit=20&offset=0
func (h *PeopleHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := intParam(query, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(query, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.directory.Search(r.Context(), query.Get("q"), limit, offset)
	if err != nil {
		h.logError(r, "search failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns one person with their channels.
//
// HTTP: GET /api/people/{username}
func (h *PeopleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	person, err := h.directory.GetPerson(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.logError(r, "get person failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// HandleChannel lists the usernames in an IRC channel. The "#" may be sent
// escaped (%23rust) or left off (rust).
//
// HTTP: GET /api/channels/{channel}
func (h *PeopleHandler) HandleChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := url.PathUnescape(chi.URLParam(r, "channel"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("channel", "channel is not a valid path segment"))
		return
	}

	members, err := h.directory.ChannelMembers(r.Context(), channel)
	if err != nil {
		h.logError(r, "list channel failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"members": members,
	})
}

// logError logs unexpected failures; client errors are not worth a line.
func (h *PeopleHandler) logError(r *http.Request, msg string, err error) {
	if isClientError(err) {
		return
	}
	h.logger.Error(msg, slog.String("path", r.URL.Path), slog.String("error", err.Error()))
}

// intParam parses an optional non-negative integer query parameter.
func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}
