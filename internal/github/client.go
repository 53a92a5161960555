package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// githubAPIVersion pins the REST API version header.
const githubAPIVersion = "2022-11-28"

// defaultBaseURL is the base URL for the public GitHub API.
const defaultBaseURL = "https://api.github.com"

// maxResponseSize bounds how much of a response body is read. Profile
// files are tiny; the contents API refuses to inline files over 1 MB.
const maxResponseSize = 8 << 20

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the root URL for API requests. Defaults to
	// "https://api.github.com".
	BaseURL string

	// Repository is the "owner/name" of the repository holding the
	// profile files.
	Repository string

	// Token is a personal access or installation token. When empty,
	// requests are sent unauthenticated (read-only, low rate limit).
	Token string

	// UserAgent is sent with every request. GitHub rejects requests
	// without one.
	UserAgent string

	// HTTPClient is used for all HTTP requests. Defaults to a client
	// using http.DefaultTransport with DefaultTimeout. Its transport is wrapped to add the
	// Authorization header.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a GitHub API client scoped to one repository.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client from config.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	owner, repo, ok := strings.Cut(config.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("github: repository must be \"owner/name\" (got %q)", config.Repository)
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "rustaceans-sync"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		owner:      owner,
		repo:       repo,
		userAgent:  userAgent,
		httpClient: authenticatedClient(config.HTTPClient, config.Token),
		logger:     logger,
	}, nil
}

// Repository returns "owner/name".
func (client *Client) Repository() string {
	return client.owner + "/" + client.repo
}

// repoPath returns the REST path prefix for the configured repository.
func (client *Client) repoPath() string {
	return fmt.Sprintf("/repos/%s/%s", client.owner, client.repo)
}

// do executes a GitHub API request and returns the response body. The path
// is relative to the base URL. A non-nil requestBody is JSON-encoded.
// Non-2xx responses are returned as *APIError.
func (client *Client) do(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	url := client.baseURL + path
	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	request.Header.Set("User-Agent", client.userAgent)
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("github: reading response body: %w", err)
	}

	client.logger.Debug("github request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", response.StatusCode),
		slog.String("rate_remaining", response.Header.Get("X-RateLimit-Remaining")),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, parseAPIErrorFromBody(response.StatusCode, body)
	}
	return body, nil
}

// get decodes the JSON body of a GET request into result.
func (client *Client) get(ctx context.Context, path string, result any) error {
	body, err := client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding response from %s: %w", path, err)
	}
	return nil
}

// post sends requestBody and decodes the response into result, if non-nil.
func (client *Client) post(ctx context.Context, path string, requestBody any, result any) error {
	body, err := client.do(ctx, http.MethodPost, path, requestBody)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding response from %s: %w", path, err)
	}
	return nil
}

// parseAPIErrorFromBody parses a GitHub API error from a status code and
// response body.
func parseAPIErrorFromBody(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var wireError struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		apiError.Message = wireError.Message
		apiError.DocumentationURL = wireError.DocumentationURL
	} else {
		apiError.Message = string(body)
	}

	return apiError
}
