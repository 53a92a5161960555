package github

import (
	"errors"
	"fmt"
	"strings"
)

// APIError represents a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode       int
	Message          string
	DocumentationURL string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a GitHub API 404 Not Found response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 404
}

// IsRateLimited reports whether err is a GitHub API rate limit response.
// GitHub returns 403 when the primary rate limit is exceeded and 429 for
// secondary limits.
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	if apiError.StatusCode == 429 {
		return true
	}
	lower := strings.ToLower(apiError.Message)
	return apiError.StatusCode == 403 && (strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection"))
}

// GraphQLError is returned when a GraphQL response carries an "errors"
// array. The HTTP status of such responses is usually 200.
type GraphQLError struct {
	Messages []string
}

func (err *GraphQLError) Error() string {
	return "github: graphql: " + strings.Join(err.Messages, "; ")
}
