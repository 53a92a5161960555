package handler

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler renders the public HTML pages: the search page and one page
// per person.
//
// Each page is parsed together with base.html into its own template set,
// because both pages define "content" and a single set can only hold one
// definition per name.
type PageHandler struct {
	directory Directory
	index     *template.Template
	person    *template.Template
	logger    *slog.Logger
}

// NewPageHandler parses the embedded templates. It only fails if a template
// is broken, so callers treat the error as fatal at startup.
func NewPageHandler(directory Directory, logger *slog.Logger) (*PageHandler, error) {
	index, err := template.ParseFS(templateFS, "templates/base.html", "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}
	person, err := template.ParseFS(templateFS, "templates/base.html", "templates/person.html")
	if err != nil {
		return nil, fmt.Errorf("parsing person template: %w", err)
	}
	return &PageHandler{
		directory: directory,
		index:     index,
		person:    person,
		logger:    logger,
	}, nil
}

type indexPage struct {
	Title string
	Query string
	Page  *service.PeoplePage
}

type personPage struct {
	Title  string
	Person *model.Person
	// Notes is already sanitized HTML produced by goldmark at ingest time.
	Notes template.HTML
}

// HandleIndex serves the search page.
//
// HTTP: GET /?q=...
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	page, err := h.directory.Search(r.Context(), query, service.MaxListLimit, 0)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.render(w, h.index, http.StatusOK, indexPage{
		Title: "rustaceans.org",
		Query: page.Query,
		Page:  page,
	})
}

// HandlePerson serves the profile page of one person.
//
// HTTP: GET /{username}
func (h *PageHandler) HandlePerson(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	person, err := h.directory.GetPerson(r.Context(), username)
	if err != nil {
		h.renderError(w, err)
		return
	}

	title := person.Username
	if person.Name != "" {
		title = person.Name + " (" + person.Username + ")"
	}
	h.render(w, h.person, http.StatusOK, personPage{
		Title:  title + " - rustaceans.org",
		Person: person,
		Notes:  template.HTML(person.Notes),
	})
}

func (h *PageHandler) render(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
	}
}

func (h *PageHandler) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrValidation):
		http.Error(w, "Not Found", http.StatusNotFound)
	default:
		h.logger.Error("page lookup failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
