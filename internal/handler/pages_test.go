package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustaceans-org/rustaceans-sync/internal/handler"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
)

func newPageRouter(t *testing.T, dir *mockDirectory) http.Handler {
	t.Helper()
	h, err := handler.NewPageHandler(dir, discardLogger())
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Get("/", h.HandleIndex)
	r.Get("/{username}", h.HandlePerson)
	return r
}

func TestPageHandler_HandlePerson(t *testing.T) {
	dir := &mockDirectory{people: map[string]*model.Person{
		"alice": {
			Username:   "alice",
			Name:       "Alice <Admin>",
			ShowAvatar: true,
			Blog:       "javascript:alert(1)",
			Notes:      "<p>I like <em>Rust</em></p>",
			Channels:   []string{"#rust", "#rust-internals"},
		},
	}}

	t.Run("renders profile", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newPageRouter(t, dir).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alice", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
		body := rr.Body.String()
		assert.Contains(t, body, "Alice &lt;Admin&gt;")
		assert.Contains(t, body, "<p>I like <em>Rust</em></p>")
		assert.Contains(t, body, "#rust, #rust-internals")
		assert.Contains(t, body, "https://github.com/alice.png")
		assert.NotContains(t, body, `href="javascript:`)
		assert.Contains(t, body, "#ZgotmplZ")
	})

	t.Run("unknown person", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newPageRouter(t, dir).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nobody", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newPageRouter(t, &mockDirectory{err: errors.New("disk I/O error")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alice", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "disk")
	})
}

func TestPageHandler_HandleIndex(t *testing.T) {
	dir := &mockDirectory{people: map[string]*model.Person{
		"bob": {Username: "bob", Name: "Bob"},
	}}

	t.Run("search results", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newPageRouter(t, dir).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?q=bo", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `href="/bob"`)
		assert.Equal(t, "bo", dir.gotQuery)
	})

	t.Run("no query shows total", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newPageRouter(t, dir).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "1 people in the directory.")
	})
}
