package github

import (
	"context"
	"fmt"
)

// Comment is an issue or pull request comment.
type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// CreateIssueComment posts a comment on an issue or pull request. Pull
// requests share the issue number space, so this is how PR conversation
// comments are created.
func (client *Client) CreateIssueComment(ctx context.Context, number int, body string) (*Comment, error) {
	path := fmt.Sprintf("%s/issues/%d/comments", client.repoPath(), number)
	request := struct {
		Body string `json:"body"`
	}{Body: body}

	var comment Comment
	if err := client.post(ctx, path, request, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}
