// Package github is the small slice of the GitHub REST and GraphQL APIs the
// directory sync needs: reading profile files through the contents
// endpoint, listing the profile directory and pull request files through
// GraphQL, and commenting on pull requests.
package github
