package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/db"
	"github.com/chiwichat/backend/internal/models"
)

// PostgresMessageRepository provides PostgreSQL-backed persistence for the
// append-only message log.
type PostgresMessageRepository struct {
	pool db.Pool
}

// NewPostgresMessageRepository constructs a message repository backed by
// PostgreSQL.
func NewPostgresMessageRepository(pool db.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Append inserts the message and bumps the owning conversation's last activity
// in one transaction. The insert adds exactly one row; the log is never read
// back and rewritten.
func (r *PostgresMessageRepository) Append(ctx context.Context, msg models.Message) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
        INSERT INTO messages (id, conversation_id, receiver_id, ciphertext, status, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, msg.ID, msg.ConversationID, msg.ReceiverID, msg.Ciphertext, msg.Status, msg.SentAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        UPDATE conversations
        SET last_activity_at = $2
        WHERE id = $1 AND last_activity_at < $2
    `, msg.ConversationID, msg.SentAt); err != nil {
		return fmt.Errorf("bump conversation activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}

	return nil
}

var _ chat.MessageStore = (*PostgresMessageRepository)(nil)

// ListBefore returns up to limit messages of the conversation newest-first,
// bounded to those sent strictly before the cursor when one is given.
func (r *PostgresMessageRepository) ListBefore(ctx context.Context, conversationID string, before *time.Time, limit int) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	query := `
        SELECT id, conversation_id, receiver_id, ciphertext, status, sent_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY sent_at DESC
        LIMIT $2
    `
	args := []any{conversationID, limit}
	if before != nil {
		query = `
            SELECT id, conversation_id, receiver_id, ciphertext, status, sent_at
            FROM messages
            WHERE conversation_id = $1 AND sent_at < $3
            ORDER BY sent_at DESC
            LIMIT $2
        `
		args = append(args, *before)
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.ReceiverID, &msg.Ciphertext, &msg.Status, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return msgs, nil
}

// UpdateStatus upgrades, in one atomic bulk update, every message of the
// conversation addressed to receiverID whose status is strictly below status
// and whose sent time is at most before. The status filter is an inequality,
// so upgrades may skip intermediate states and re-runs affect zero rows.
func (r *PostgresMessageRepository) UpdateStatus(ctx context.Context, conversationID, receiverID string, status models.MessageStatus, before time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE messages
        SET status = $3
        WHERE conversation_id = $1 AND receiver_id = $2 AND status < $3 AND sent_at <= $4
    `, conversationID, receiverID, status, before)
	if err != nil {
		return 0, fmt.Errorf("bulk update message status: %w", err)
	}

	return tag.RowsAffected(), nil
}
