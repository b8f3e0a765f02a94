package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/db"
	"github.com/chiwichat/backend/internal/models"
)

// PostgresConversationRepository provides PostgreSQL-backed persistence for
// conversations.
type PostgresConversationRepository struct {
	pool db.Pool
}

// NewPostgresConversationRepository constructs a conversation repository
// backed by PostgreSQL.
func NewPostgresConversationRepository(pool db.Pool) *PostgresConversationRepository {
	return &PostgresConversationRepository{pool: pool}
}

// CreateOrGet inserts the conversation unless one already exists for the
// unordered participant pair. Uniqueness is enforced by the insert itself
// through the (LEAST, GREATEST) pair index, so two concurrent calls for the
// same pair can never produce two conversations.
func (r *PostgresConversationRepository) CreateOrGet(ctx context.Context, conv models.Conversation) (models.Conversation, bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO conversations (id, user_a_id, user_a_name, user_b_id, user_b_name, created_at, last_activity_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT ((LEAST(user_a_id, user_b_id)), (GREATEST(user_a_id, user_b_id))) DO NOTHING
        RETURNING id, user_a_id, user_a_name, user_b_id, user_b_name, created_at, last_activity_at
    `, conv.ID, conv.UserAID, conv.UserAName, conv.UserBID, conv.UserBName, conv.CreatedAt, conv.LastActivityAt)

	stored, err := scanConversation(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, chat.ErrConversationNotFound) {
		return models.Conversation{}, false, fmt.Errorf("insert conversation: %w", err)
	}

	// The pair already exists; the winning insert may have been ours lost to a
	// race or any earlier call, either way the stored row is authoritative.
	row = conn.QueryRow(ctx, `
        SELECT id, user_a_id, user_a_name, user_b_id, user_b_name, created_at, last_activity_at
        FROM conversations
        WHERE LEAST(user_a_id, user_b_id) = LEAST($1, $2)
          AND GREATEST(user_a_id, user_b_id) = GREATEST($1, $2)
    `, conv.UserAID, conv.UserBID)

	stored, err = scanConversation(row)
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("select conversation by pair: %w", err)
	}

	return stored, false, nil
}

// Get loads a conversation by id.
func (r *PostgresConversationRepository) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_a_id, user_a_name, user_b_id, user_b_name, created_at, last_activity_at
        FROM conversations
        WHERE id = $1
    `, conversationID)

	return scanConversation(row)
}

// ListForUser returns every conversation the user participates in, most
// recently active first, each decorated with its latest message and the count
// of messages addressed to the user not yet read.
func (r *PostgresConversationRepository) ListForUser(ctx context.Context, userID string) ([]chat.ConversationRecord, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.user_a_id, c.user_a_name, c.user_b_id, c.user_b_name, c.created_at, c.last_activity_at,
               m.id, m.receiver_id, m.ciphertext, m.status, m.sent_at,
               (SELECT COUNT(*) FROM messages u
                WHERE u.conversation_id = c.id AND u.receiver_id = $1 AND u.status < $2) AS unread
        FROM conversations c
        LEFT JOIN LATERAL (
            SELECT id, receiver_id, ciphertext, status, sent_at
            FROM messages
            WHERE conversation_id = c.id
            ORDER BY sent_at DESC
            LIMIT 1
        ) m ON true
        WHERE c.user_a_id = $1 OR c.user_b_id = $1
        ORDER BY c.last_activity_at DESC
    `, userID, models.StatusRead)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var records []chat.ConversationRecord
	for rows.Next() {
		var (
			rec        chat.ConversationRecord
			lastID     *string
			lastRecv   *string
			lastCipher *string
			lastStatus *int16
			lastSentAt *time.Time
		)

		c := &rec.Conversation
		if err := rows.Scan(&c.ID, &c.UserAID, &c.UserAName, &c.UserBID, &c.UserBName, &c.CreatedAt, &c.LastActivityAt,
			&lastID, &lastRecv, &lastCipher, &lastStatus, &lastSentAt, &rec.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}

		if lastID != nil {
			rec.LastMessage = &models.Message{
				ID:             *lastID,
				ConversationID: c.ID,
				ReceiverID:     *lastRecv,
				Ciphertext:     *lastCipher,
				Status:         models.MessageStatus(*lastStatus),
				SentAt:         *lastSentAt,
			}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return records, nil
}

var _ chat.ConversationStore = (*PostgresConversationRepository)(nil)

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var conv models.Conversation
	if err := row.Scan(&conv.ID, &conv.UserAID, &conv.UserAName, &conv.UserBID, &conv.UserBName, &conv.CreatedAt, &conv.LastActivityAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Conversation{}, chat.ErrConversationNotFound
		}
		return models.Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	return conv, nil
}
