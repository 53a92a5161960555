package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
	"github.com/rustaceans-org/rustaceans-sync/internal/repository"
)

const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	MaxQueryLength     = 200
	MaxChannelNameSize = 64
)

// PeoplePage is one page of search results.
type PeoplePage struct {
	People []model.Person `json:"people"`
	Query  string         `json:"query"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Total  int            `json:"total"`
}

// DirectoryService answers read queries against the directory for the HTTP
// API and the profile pages.
type DirectoryService struct {
	repo   repository.DirectoryReader
	logger *slog.Logger
}

func NewDirectoryService(repo repository.DirectoryReader, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{repo: repo, logger: logger}
}

// Search lists people whose searchable fields contain query. Out of range
// limits are clamped rather than rejected, the same way list endpoints
// usually behave.
func (s *DirectoryService) Search(ctx context.Context, query string, limit, offset int) (*PeoplePage, error) {
	query = strings.TrimSpace(query)
	if len(query) > MaxQueryLength {
		return nil, apperror.ValidationFailed("q", fmt.Sprintf("query must be at most %d characters", MaxQueryLength))
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	people, err := s.repo.Search(ctx, query, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("searching people: %w", err)
	}
	total, err := s.repo.CountMatches(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting matches: %w", err)
	}

	return &PeoplePage{
		People: people,
		Query:  query,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	}, nil
}

// GetPerson returns one person. Returns apperror.ErrNotFound if absent.
func (s *DirectoryService) GetPerson(ctx context.Context, username string) (*model.Person, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return s.repo.GetPerson(ctx, username)
}

// ChannelMembers lists the usernames in an IRC channel. The leading "#" is
// optional, since it cannot appear unescaped in a URL path.
func (s *DirectoryService) ChannelMembers(ctx context.Context, channel string) ([]string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" || channel == "#" {
		return nil, apperror.ValidationFailed("channel", "channel is required")
	}
	if len(channel) > MaxChannelNameSize {
		return nil, apperror.ValidationFailed("channel", fmt.Sprintf("channel must be at most %d characters", MaxChannelNameSize))
	}
	if !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}

	members, err := s.repo.ListChannelMembers(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("listing channel %s: %w", channel, err)
	}
	return members, nil
}
