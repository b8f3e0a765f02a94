package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/logging"
)

// TokenValidator resolves a bearer token to an authenticated identity.
type TokenValidator interface {
	Validate(token string, domain auth.TokenDomain) (auth.Identity, error)
}

// BearerAuth authenticates requests against the access token domain and
// stores the caller's identity on the request context. Only access-domain
// tokens are ever accepted here: a refresh token presented as a bearer
// credential fails signature verification, so expiry-based refresh
// eligibility can never be claimed by the wrong token kind.
func BearerAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				unauthorized(w, r, "authorization header required", false)
				return
			}

			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, r, "authorization header must be of the form 'Bearer <token>'", false)
				return
			}

			identity, err := tokens.Validate(strings.TrimSpace(token), auth.DomainAccess)
			if err != nil {
				logging.FromContext(r.Context()).Warn("bearer token rejected", "error", err)
				if errors.Is(err, auth.ErrTokenExpired) {
					unauthorized(w, r, "token expired", true)
					return
				}
				unauthorized(w, r, "invalid token", false)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string, canRefresh bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	payload := map[string]any{"error": message}
	if canRefresh {
		payload["canRefresh"] = true
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(r.Context()).Error("encode unauthorized response", "error", err)
	}
}
