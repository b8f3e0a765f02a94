package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/chiwichat/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates no refresh token is stored for the user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshMismatch indicates the presented refresh token validates but
	// differs from the single stored token for the user, i.e. it has been
	// superseded by a later login or rotation.
	ErrRefreshMismatch = errors.New("refresh token superseded")
)

// Session is the single live refresh token record for a user identity.
type Session struct {
	UserID       string
	Username     string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshStore persists the one live refresh token per user. Save overwrites
// any previous token for the same user, invalidating it immediately.
type RefreshStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, userID string) (Session, error)
	Delete(ctx context.Context, userID string) error
}

// SessionManager issues access/refresh token pairs and rotates refresh tokens,
// enforcing at most one live refresh token per identity.
type SessionManager struct {
	tokens *TokenService
	store  RefreshStore
}

// NewSessionManager constructs a SessionManager on the given token service and
// refresh token store.
func NewSessionManager(tokens *TokenService, store RefreshStore) *SessionManager {
	if tokens == nil || store == nil {
		panic("auth: session manager requires a token service and a refresh store")
	}
	return &SessionManager{tokens: tokens, store: store}
}

// Login issues a fresh token pair for the identity and persists the refresh
// token, superseding any previous session for the same user.
func (m *SessionManager) Login(ctx context.Context, identity Identity) (models.SessionTokens, error) {
	return m.issue(ctx, identity)
}

// Rotate exchanges a presented refresh token for a new token pair. The token
// must validate against the refresh domain and be byte-equal to the single
// stored token for its subject; a stored-value mismatch surfaces as
// ErrRefreshMismatch so callers can tell "superseded" from "stale or forged".
func (m *SessionManager) Rotate(ctx context.Context, presented string) (models.SessionTokens, error) {
	identity, err := m.tokens.Validate(presented, DomainRefresh)
	if err != nil {
		return models.SessionTokens{}, err
	}

	session, err := m.store.Find(ctx, identity.UserID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if subtle.ConstantTimeCompare([]byte(session.RefreshToken), []byte(presented)) != 1 {
		return models.SessionTokens{}, ErrRefreshMismatch
	}

	return m.issue(ctx, identity)
}

// Revoke drops the stored refresh token for the user, ending the session.
func (m *SessionManager) Revoke(ctx context.Context, userID string) {
	_ = m.store.Delete(ctx, userID)
}

func (m *SessionManager) issue(ctx context.Context, identity Identity) (models.SessionTokens, error) {
	accessToken, accessExp, err := m.tokens.Issue(identity, DomainAccess)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, refreshExp, err := m.tokens.Issue(identity, DomainRefresh)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := m.store.Save(ctx, Session{
		UserID:       identity.UserID,
		Username:     identity.Username,
		RefreshToken: refreshToken,
		ExpiresAt:    refreshExp,
	}); err != nil {
		return models.SessionTokens{}, fmt.Errorf("persist session: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}
