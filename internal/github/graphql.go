package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// graphQLRequest is the POST /graphql body.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the envelope GitHub wraps every GraphQL answer in.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL runs query with variables and decodes the "data" member into
// result. An "errors" array in the response is returned as *GraphQLError,
// even when partial data came back with it.
func (client *Client) GraphQL(ctx context.Context, query string, variables map[string]any, result any) error {
	var response graphQLResponse
	if err := client.post(ctx, "/graphql", graphQLRequest{Query: query, Variables: variables}, &response); err != nil {
		return err
	}

	if len(response.Errors) > 0 {
		messages := make([]string, 0, len(response.Errors))
		for _, e := range response.Errors {
			messages = append(messages, e.Message)
		}
		return &GraphQLError{Messages: messages}
	}

	if result == nil || len(response.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Data, result); err != nil {
		return fmt.Errorf("github: decoding graphql data: %w", err)
	}
	return nil
}

const listDirectoryQuery = `query($owner: String!, $name: String!, $expression: String!) {
  repository(owner: $owner, name: $name) {
    object(expression: $expression) {
      ... on Tree {
        entries { name type }
      }
    }
  }
}`

// ListDirectory returns the names of the files (blobs) directly inside dir
// on the default branch. An empty dir lists the repository root. A missing
// directory yields an empty list.
func (client *Client) ListDirectory(ctx context.Context, dir string) ([]string, error) {
	expression := "HEAD:" + strings.Trim(dir, "/")

	var data struct {
		Repository struct {
			Object *struct {
				Entries []struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"entries"`
			} `json:"object"`
		} `json:"repository"`
	}
	variables := map[string]any{
		"owner":      client.owner,
		"name":       client.repo,
		"expression": expression,
	}
	if err := client.GraphQL(ctx, listDirectoryQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("github: listing %s: %w", expression, err)
	}

	names := []string{}
	if data.Repository.Object == nil {
		return names, nil
	}
	for _, entry := range data.Repository.Object.Entries {
		if entry.Type == "blob" {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}

const pullRequestFilesQuery = `query($owner: String!, $name: String!, $number: Int!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    pullRequest(number: $number) {
      files(first: 100, after: $cursor) {
        nodes { path }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

// ListPullRequestFiles returns the paths of every file touched by pull
// request number, following pagination until the last page.
func (client *Client) ListPullRequestFiles(ctx context.Context, number int) ([]string, error) {
	paths := []string{}
	var cursor *string

	for {
		var data struct {
			Repository struct {
				PullRequest *struct {
					Files struct {
						Nodes []struct {
							Path string `json:"path"`
						} `json:"nodes"`
						PageInfo struct {
							HasNextPage bool   `json:"hasNextPage"`
							EndCursor   string `json:"endCursor"`
						} `json:"pageInfo"`
					} `json:"files"`
				} `json:"pullRequest"`
			} `json:"repository"`
		}
		variables := map[string]any{
			"owner":  client.owner,
			"name":   client.repo,
			"number": number,
			"cursor": cursor,
		}
		if err := client.GraphQL(ctx, pullRequestFilesQuery, variables, &data); err != nil {
			return nil, fmt.Errorf("github: listing files of pull request #%d: %w", number, err)
		}

		pr := data.Repository.PullRequest
		if pr == nil {
			return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("pull request #%d not found", number)}
		}
		for _, node := range pr.Files.Nodes {
			paths = append(paths, node.Path)
		}

		if !pr.Files.PageInfo.HasNextPage || pr.Files.PageInfo.EndCursor == "" {
			return paths, nil
		}
		next := pr.Files.PageInfo.EndCursor
		cursor = &next
	}
}
