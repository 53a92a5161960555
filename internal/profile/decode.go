// Package profile decodes the per-user JSON files stored in the rustaceans
// repository into model.UserRecord values.
package profile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rustaceans-org/rustaceans-sync/internal/model"
)

var (
	ErrMalformedJSON     = errors.New("malformed JSON")
	ErrUnexpectedContent = errors.New("unexpected contents")
)

// Kind classifies a DecodeError.
type Kind int

const (
	MalformedJSON Kind = iota + 1
	UnexpectedContentKind
)

func (k Kind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed_json"
	case UnexpectedContentKind:
		return "unexpected_content"
	default:
		return "unknown"
	}
}

// DecodeError reports why a profile file could not be turned into a
// UserRecord. Detail is the underlying parser message and is quoted back to
// the pull request author, so it is kept verbatim.
type DecodeError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Kind == UnexpectedContentKind {
		return fmt.Sprintf("profile: unexpected contents (%s)", e.Detail)
	}
	return fmt.Sprintf("profile: malformed JSON: %s", e.Detail)
}

// Unwrap exposes both the kind sentinel and the parser error, so
// errors.Is(err, ErrMalformedJSON) and errors.As(err, *json.SyntaxError)
// both work.
func (e *DecodeError) Unwrap() []error {
	sentinel := ErrMalformedJSON
	if e.Kind == UnexpectedContentKind {
		sentinel = ErrUnexpectedContent
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func malformed(err error) *DecodeError {
	return &DecodeError{Kind: MalformedJSON, Detail: err.Error(), Err: err}
}

func unexpected(detail string) *DecodeError {
	return &DecodeError{Kind: UnexpectedContentKind, Detail: detail}
}

// Content kinds reported by the contents endpoint.
const (
	KindFile = "file"
	KindDir  = "dir"
)

// DecodeFile decodes a contents-endpoint payload. kind is the envelope's
// "type", encoding its "encoding" and content the encoded file body.
//
// Anything that is not a file with a payload is UnexpectedContentKind; that
// decision is made from the envelope, never from the bytes.
func DecodeFile(kind, encoding, content string) (*model.UserRecord, error) {
	if kind != KindFile {
		return nil, unexpected(fmt.Sprintf("content type %q", kind))
	}
	if content == "" {
		return nil, unexpected("file has no content")
	}
	if encoding != "" && encoding != "base64" {
		return nil, unexpected(fmt.Sprintf("content encoding %q", encoding))
	}

	raw, err := decodeBase64(content)
	if err != nil {
		return nil, malformed(err)
	}
	return Decode(raw)
}

// decodeBase64 accepts the line-wrapped base64 GitHub returns.
func decodeBase64(content string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, content)
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 content: %w", err)
	}
	return raw, nil
}

// Decode parses raw profile bytes. The input must be UTF-8 text holding a
// single JSON object; fields of the wrong JSON type are rejected. JSON null
// values count as absent. Unknown keys (including the retired show_github)
// are ignored.
func Decode(raw []byte) (*model.UserRecord, error) {
	if !utf8.Valid(raw) {
		return nil, malformed(errors.New("file is not valid UTF-8"))
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if err := json.Unmarshal(trimmed, new(any)); err != nil {
			return nil, malformed(err)
		}
		return nil, malformed(errors.New("profile must be a JSON object"))
	}

	var rec model.UserRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, malformed(err)
	}
	return &rec, nil
}
