package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Content types reported by the contents API.
const (
	ContentTypeFile    = "file"
	ContentTypeDir     = "dir"
	ContentTypeSymlink = "symlink"
)

// Contents is the response of GET /repos/{owner}/{repo}/contents/{path}.
// Only the fields the sync reads are decoded.
type Contents struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
}

// GetContents fetches the file or directory at path on the default branch.
//
// A directory listing comes back as a JSON array; it is reported as a
// Contents with Type "dir" and no content. A 404 is returned as an
// *APIError (see IsNotFound).
func (client *Client) GetContents(ctx context.Context, path string) (*Contents, error) {
	apiPath := client.repoPath() + "/contents/" + escapePath(path)

	body, err := client.do(ctx, "GET", apiPath, nil)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return &Contents{Type: ContentTypeDir, Path: path}, nil
	}

	var contents Contents
	if err := json.Unmarshal(body, &contents); err != nil {
		return nil, fmt.Errorf("github: decoding contents of %s: %w", path, err)
	}
	return &contents, nil
}

// escapePath escapes each segment of a slash-separated repository path.
func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
