package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSessionManager() *SessionManager {
	return NewSessionManager(newTestTokenService(), NewInMemoryRefreshStore())
}

func TestSessionManagerLoginPersistsRefreshToken(t *testing.T) {
	store := NewInMemoryRefreshStore()
	manager := NewSessionManager(newTestTokenService(), store)

	tokens, err := manager.Login(context.Background(), Identity{UserID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens to be issued, got %+v", tokens)
	}

	session, err := store.Find(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if session.RefreshToken != tokens.RefreshToken {
		t.Fatal("stored refresh token does not match the issued one")
	}
}

func TestSessionManagerRotate(t *testing.T) {
	manager := newTestSessionManager()
	ctx := context.Background()

	first, err := manager.Login(ctx, Identity{UserID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := manager.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token after rotation")
	}

	// The rotated-out token is superseded and must not work twice.
	if _, err := manager.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch for superseded token, got %v", err)
	}

	// The fresh token still rotates.
	if _, err := manager.Rotate(ctx, second.RefreshToken); err != nil {
		t.Fatalf("rotate fresh token: %v", err)
	}
}

func TestSessionManagerRotateUnknownUser(t *testing.T) {
	tokens := newTestTokenService()
	manager := NewSessionManager(tokens, NewInMemoryRefreshStore())

	// Valid refresh-domain token, but no session was ever stored.
	refresh, _, err := tokens.Issue(Identity{UserID: "ghost"}, DomainRefresh)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := manager.Rotate(context.Background(), refresh); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionManagerRotateRejectsAccessToken(t *testing.T) {
	tokens := newTestTokenService()
	manager := NewSessionManager(tokens, NewInMemoryRefreshStore())
	ctx := context.Background()

	pair, err := manager.Login(ctx, Identity{UserID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := manager.Rotate(ctx, pair.AccessToken); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for access token, got %v", err)
	}
}

func TestSessionManagerLoginSupersedesExistingSession(t *testing.T) {
	manager := newTestSessionManager()
	ctx := context.Background()

	first, err := manager.Login(ctx, Identity{UserID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := manager.Login(ctx, Identity{UserID: "user-1", Username: "alice"}); err != nil {
		t.Fatalf("second login: %v", err)
	}

	if _, err := manager.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected first session's token to be superseded, got %v", err)
	}
}

func TestSessionManagerRevoke(t *testing.T) {
	manager := newTestSessionManager()
	ctx := context.Background()

	pair, err := manager.Login(ctx, Identity{UserID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	manager.Revoke(ctx, "user-1")

	if _, err := manager.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
}

func TestSessionManagerRotateExpiredRefreshToken(t *testing.T) {
	tokens := newTestTokenService()
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.NowFunc = func() time.Time { return issued }

	manager := NewSessionManager(tokens, NewInMemoryRefreshStore())
	ctx := context.Background()

	pair, err := manager.Login(ctx, Identity{UserID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tokens.NowFunc = func() time.Time { return issued.Add(25 * time.Hour) }

	if _, err := manager.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
