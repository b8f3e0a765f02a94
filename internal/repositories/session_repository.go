package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/db"
)

// PostgresRefreshStore persists refresh tokens to PostgreSQL, one row per user
// identity. The upsert keyed on user_id is what makes every rotation or login
// invalidate the previous refresh token immediately.
type PostgresRefreshStore struct {
	pool db.Pool
}

// NewPostgresRefreshStore constructs a refresh token store backed by
// PostgreSQL.
func NewPostgresRefreshStore(pool db.Pool) *PostgresRefreshStore {
	return &PostgresRefreshStore{pool: pool}
}

// Save stores or overwrites the user's session record.
func (s *PostgresRefreshStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (user_id, username, refresh_token, expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id)
        DO UPDATE SET username = EXCLUDED.username,
                      refresh_token = EXCLUDED.refresh_token,
                      expires_at = EXCLUDED.expires_at
    `, session.UserID, session.Username, session.RefreshToken, session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// Find loads the live session for a user.
func (s *PostgresRefreshStore) Find(ctx context.Context, userID string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT user_id, username, refresh_token, expires_at
        FROM sessions
        WHERE user_id = $1
    `, userID)

	var session auth.Session
	var expiresAt time.Time
	if err := row.Scan(&session.UserID, &session.Username, &session.RefreshToken, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.ExpiresAt = expiresAt.UTC()
	return session, nil
}

// Delete removes the user's session.
func (s *PostgresRefreshStore) Delete(ctx context.Context, userID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM sessions
        WHERE user_id = $1
    `, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}

	return nil
}

var _ auth.RefreshStore = (*PostgresRefreshStore)(nil)
