package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/logging"
	"github.com/chiwichat/backend/internal/models"
	"github.com/chiwichat/backend/internal/repositories"
)

// AuthHandler implements login, refresh rotation, and token introspection.
type AuthHandler struct {
	Users       UserStore
	Sessions    SessionManager
	Limiter     RateLimiter
	Development bool
}

type loginRequest struct {
	Username string `json:"username"`
}

type sessionResponse struct {
	models.SessionTokens
	Username string `json:"username"`
}

// Login handles POST /login. The caller asserts an identity by username or
// email; a successful login supersedes any previous refresh session for that
// identity.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if l := len(req.Username); l < 2 || l > 100 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
			"errors": models.FieldErrors{"username": "must be between 2 and 100 characters"},
		})
		return
	}

	user, err := h.Users.FindByLogin(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not registered")
			return
		}
		logger.Error("login lookup failed", "error", err)
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	tokens, err := h.Sessions.Login(ctx, auth.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	respondJSON(ctx, w, http.StatusOK, sessionResponse{SessionTokens: tokens, Username: user.Username})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /auth/refresh: it exchanges a live refresh token for a
// new access/refresh pair, invalidating the presented token. Any stale,
// forged, or superseded token yields 403.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "refresh") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many refresh attempts")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Rotate(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshMismatch):
			logger.Warn("refresh token superseded")
			respondError(ctx, w, http.StatusForbidden, "refresh token superseded")
		case errors.Is(err, auth.ErrSessionNotFound),
			errors.Is(err, auth.ErrTokenExpired),
			errors.Is(err, auth.ErrTokenNotYetValid),
			errors.Is(err, auth.ErrSignatureInvalid),
			errors.Is(err, auth.ErrTokenMalformed),
			errors.Is(err, auth.ErrMissingIdentity):
			logger.Warn("refresh token rejected", "error", err)
			respondError(ctx, w, http.StatusForbidden, "invalid refresh token")
		default:
			logger.Error("refresh failed", "error", err)
			respondDomainError(ctx, w, err, h.Development)
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, tokens)
}

// Logout handles POST /auth/logout. It drops the caller's refresh session so
// the pair dies with the current access token; the access token itself stays
// valid until its expiry.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.Sessions.Revoke(ctx, identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Check handles GET /auth/check. Reaching it at all means the bearer
// middleware accepted the access token.
func (h AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"userId":   identity.UserID,
		"username": identity.Username,
	})
}
