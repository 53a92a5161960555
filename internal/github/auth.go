package github

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every request made without a caller-supplied
// HTTPClient.
const DefaultTimeout = 30 * time.Second

// authenticatedClient returns an HTTP client that sends token as a Bearer
// credential on every request. The oauth2 transport handles header
// injection; GitHub accepts personal access tokens and installation tokens
// in the same "Authorization: Bearer" form.
func authenticatedClient(base *http.Client, token string) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	if token == "" {
		return base
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   transport,
		},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
}
