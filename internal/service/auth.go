package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/auth"
)

// AdminAuthService exchanges the admin password for an access token.
//
//	AuthHandler (HTTP) → AdminAuthService → PasswordService (bcrypt)
//	                                      ↘ TokenService (JWT)
type AdminAuthService struct {
	passwords    *auth.PasswordService
	tokens       *auth.TokenService
	passwordHash string
	logger       *slog.Logger
}

// NewAdminAuthService creates the service. An empty passwordHash disables
// login: every attempt fails with apperror.ErrUnavailable.
func NewAdminAuthService(passwords *auth.PasswordService, tokens *auth.TokenService, passwordHash string, logger *slog.Logger) *AdminAuthService {
	return &AdminAuthService{
		passwords:    passwords,
		tokens:       tokens,
		passwordHash: passwordHash,
		logger:       logger,
	}
}

// TokenResult is an issued admin token.
type TokenResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks password against the configured hash and issues a token.
func (s *AdminAuthService) Login(_ context.Context, password string) (*TokenResult, error) {
	if s.passwordHash == "" {
		return nil, apperror.Unavailable("admin login is not configured")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	if err := s.passwords.Verify(s.passwordHash, password); err != nil {
		s.logger.Warn("admin login rejected", slog.String("error", err.Error()))
		return nil, apperror.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.Generate(auth.AdminSubject)
	if err != nil {
		return nil, fmt.Errorf("issuing admin token: %w", err)
	}

	s.logger.Info("admin token issued")
	return &TokenResult{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: time.Now().Add(s.tokens.TTL()),
	}, nil
}
