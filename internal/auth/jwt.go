// Package auth protects the admin endpoints of the sync server.
//
// There is a single administrator. They exchange the admin password for a
// short-lived JWT at POST /auth/token and send it back as
// "Authorization: Bearer <token>" on the /api/sync routes.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"admin","iss":"rustaceans-sync","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is the "iss" claim of every token this package signs.
	Issuer = "rustaceans-sync"

	// AdminSubject is the "sub" claim of admin tokens.
	AdminSubject = "admin"

	// DefaultTokenTTL is how long an admin token stays valid.
	DefaultTokenTTL = time.Hour
)

// TokenService signs and verifies HS256 tokens with one shared secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret should be at least 32
// bytes of random data in production, e.g. JWT_SECRET=$(openssl rand -hex 32).
// A zero ttl selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of generated tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token for subject that expires after the service's TTL.
func (s *TokenService) Generate(subject string) (string, error) {
	return s.GenerateWithDuration(subject, s.ttl)
}

// GenerateWithDuration signs a token for subject that expires after d.
// Tests use a negative d to mint expired tokens.
func (s *TokenService) GenerateWithDuration(subject string, d time.Duration) (string, error) {
	now := s.now()

	c := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies tokenStr and returns its subject.
//
// The algorithm is pinned to HS256 so a token claiming "none" or an
// asymmetric algorithm is rejected before the signature is looked at.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}
