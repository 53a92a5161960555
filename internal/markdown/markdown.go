// Package markdown renders the free-text notes field of a profile to HTML.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to sanitized HTML.
//
// goldmark's HTML renderer runs in safe mode unless html.WithUnsafe is
// given: raw HTML blocks and inline tags are replaced by an
// "<!-- raw HTML omitted -->" comment and javascript:/vbscript: links are
// dropped. That is the only sanitization applied, so WithUnsafe must never
// be added here.
type Renderer struct {
	md goldmark.Markdown
}

// New returns a Renderer with GitHub-flavoured markdown enabled.
// A goldmark.Markdown is safe for concurrent use once configured.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithXHTML(),
			),
		),
	}
}

// Render converts src to HTML.
func (r *Renderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: rendering notes: %w", err)
	}
	return buf.String(), nil
}
