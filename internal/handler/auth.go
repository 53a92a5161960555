package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

// AdminAuthenticator issues admin tokens. *service.AdminAuthService
// satisfies it.
type AdminAuthenticator interface {
	Login(ctx context.Context, password string) (*service.TokenResult, error)
}

var _ AdminAuthenticator = (*service.AdminAuthService)(nil)

type tokenRequest struct {
	Password string `json:"password"`
}

// AuthHandler exchanges the admin password for a bearer token.
type AuthHandler struct {
	auth   AdminAuthenticator
	logger *slog.Logger
}

func NewAuthHandler(auth AdminAuthenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// HandleToken checks the password and returns a JWT.
//
// HTTP: POST /auth/token
// REQUEST BODY: {"password": "..."}
// RESPONSE: {"token": "...", "token_type": "Bearer", "expires_at": "..."}
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Password)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("issuing admin token failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}
