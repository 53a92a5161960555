package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustaceans-org/rustaceans-sync/internal/auth"
	"github.com/rustaceans-org/rustaceans-sync/internal/config"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
)

const (
	testRepo          = "nrc/rustaceans.org"
	testWebhookSecret = "server-test-webhook-secret"
	testJWTSecret     = "server-test-jwt-secret-0123456789"
	testPassword      = "correct horse battery"
)

// fakeGitHub serves the three GitHub calls the reconciler makes: file
// contents, pull request files and issue comments.
type fakeGitHub struct {
	mu       sync.Mutex
	files    map[string]string
	prFiles  []string
	comments chan string
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{files: map[string]string{}, comments: make(chan string, 10)}
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contentsPrefix := "/repos/" + testRepo + "/contents/"
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, contentsPrefix):
		raw, ok := f.files[strings.TrimPrefix(r.URL.Path, contentsPrefix)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(raw)),
		})

	case r.Method == http.MethodPost && r.URL.Path == "/graphql":
		nodes := []map[string]string{}
		for _, p := range f.prFiles {
			nodes = append(nodes, map[string]string{"path": p})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"repository": map[string]any{
					"pullRequest": map[string]any{
						"files": map[string]any{
							"nodes":    nodes,
							"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
						},
					},
				},
			},
		})

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/repos/"+testRepo+"/issues/"):
		var body struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.comments <- body.Body
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1,"body":"ok"}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found"}`)
	}
}

func testConfig(t *testing.T, githubURL string, admin bool) *config.Config {
	t.Helper()
	var cfg config.Config
	cfg.LoadDefaults()
	cfg.DBPath = filepath.Join(t.TempDir(), "rustaceans.db")
	cfg.GitHubAPIURL = githubURL
	cfg.GitHubRepo = testRepo
	cfg.WebhookSecret = testWebhookSecret

	if admin {
		hash, err := auth.NewPasswordServiceWithCost(4).Hash(testPassword)
		require.NoError(t, err)
		cfg.JWTSecret = testJWTSecret
		cfg.AdminPasswordHash = hash
	}
	require.NoError(t, cfg.Validate())
	return &cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)

	s.queue.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.queue.Stop(ctx)
		_ = s.db.Close()
	})
	return s
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signedDelivery(event, delivery string, body []byte) *http.Request {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func waitForComment(t *testing.T, gh *fakeGitHub) string {
	t.Helper()
	select {
	case c := <-gh.comments:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the pull request comment")
		return ""
	}
}

func TestMergedPullRequestUpdatesDirectory(t *testing.T) {
	gh := newFakeGitHub()
	gh.files["data/alice.json"] = `{"name": "Alice", "irc": "alice_irc", "irc_channels": ["#rust", "#rust-internals"], "notes": "I like *Rust*"}`
	gh.prFiles = []string{"data/alice.json", "README.md"}
	ghServer := httptest.NewServer(gh)
	defer ghServer.Close()

	s := newTestServer(t, testConfig(t, ghServer.URL, false))
	h := s.Handler()

	payload := fmt.Sprintf(`{"action":"closed","number":42,"pull_request":{"merged":true},"repository":{"full_name":%q}}`, testRepo)
	rr := do(t, h, signedDelivery("pull_request", "delivery-1", []byte(payload)))
	require.Equal(t, http.StatusAccepted, rr.Code)

	comment := waitForComment(t, gh)
	assert.Equal(t, "Success, the rustaceans db has been updated. You can see your details at http://www.rustaceans.org/alice.", comment)

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/api/people/alice", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var person model.Person
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&person))
	assert.Equal(t, "Alice", person.Name)
	assert.Equal(t, "alice_irc", person.IRC)
	assert.ElementsMatch(t, []string{"#rust", "#rust-internals"}, person.Channels)
	assert.Contains(t, person.Notes, "<em>Rust</em>")

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/api/channels/rust", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"alice"`)

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/alice", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Alice")

	// The file is deleted by a later PR.
	gh.mu.Lock()
	delete(gh.files, "data/alice.json")
	gh.prFiles = []string{"data/alice.json"}
	gh.mu.Unlock()
	payload = fmt.Sprintf(`{"action":"closed","number":43,"pull_request":{"merged":true},"repository":{"full_name":%q}}`, testRepo)
	rr = do(t, h, signedDelivery("pull_request", "delivery-2", []byte(payload)))
	require.Equal(t, http.StatusAccepted, rr.Code)

	comment = waitForComment(t, gh)
	assert.True(t, strings.HasPrefix(comment, "Success, you have been removed"), comment)

	rr = do(t, h, httptest.NewRequest(http.MethodGet, "/api/people/alice", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMalformedProfileLeavesDirectoryUntouched(t *testing.T) {
	gh := newFakeGitHub()
	gh.files["data/bob.json"] = `{"name": "Bob",}`
	gh.prFiles = []string{"data/bob.json"}
	ghServer := httptest.NewServer(gh)
	defer ghServer.Close()

	s := newTestServer(t, testConfig(t, ghServer.URL, false))
	h := s.Handler()

	payload := fmt.Sprintf(`{"action":"closed","number":7,"pull_request":{"merged":true},"repository":{"full_name":%q}}`, testRepo)
	require.Equal(t, http.StatusAccepted, do(t, h, signedDelivery("pull_request", "d-7", []byte(payload))).Code)

	comment := waitForComment(t, gh)
	assert.True(t, strings.HasPrefix(comment, "There was an error parsing JSON (`"), comment)

	assert.Equal(t, http.StatusNotFound, do(t, h, httptest.NewRequest(http.MethodGet, "/api/people/bob", nil)).Code)
}

func TestAdminRoutes(t *testing.T) {
	gh := newFakeGitHub()
	gh.files["data/carol.json"] = `{"name": "Carol"}`
	ghServer := httptest.NewServer(gh)
	defer ghServer.Close()

	s := newTestServer(t, testConfig(t, ghServer.URL, true))
	h := s.Handler()

	rr := do(t, h, httptest.NewRequest(http.MethodPost, "/api/sync/carol", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(fmt.Sprintf(`{"password":%q}`, testPassword))))
	require.Equal(t, http.StatusOK, rr.Code)
	var token struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&token))
	require.NotEmpty(t, token.Token)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/carol", nil)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	rr = do(t, h, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	// No PR number, so no comment: poll the API until the job has run.
	require.Eventually(t, func() bool {
		return do(t, h, httptest.NewRequest(http.MethodGet, "/api/people/carol", nil)).Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOptionalRoutesDisabled(t *testing.T) {
	ghServer := httptest.NewServer(newFakeGitHub())
	defer ghServer.Close()

	cfg := testConfig(t, ghServer.URL, false)
	cfg.WebhookSecret = ""
	h := newTestServer(t, cfg).Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader("{}"))).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader("{}"))).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, httptest.NewRequest(http.MethodPost, "/api/sync", nil)).Code)
}

func TestNew_RefusesMemoryDatabase(t *testing.T) {
	ghServer := httptest.NewServer(newFakeGitHub())
	defer ghServer.Close()

	cfg := testConfig(t, ghServer.URL, false)
	cfg.DBPath = ":memory:"
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrMemoryDatabase)
}

func TestHealthz(t *testing.T) {
	ghServer := httptest.NewServer(newFakeGitHub())
	defer ghServer.Close()

	h := newTestServer(t, testConfig(t, ghServer.URL, false)).Handler()
	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
