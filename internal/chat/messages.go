package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chiwichat/backend/internal/gateway"
	"github.com/chiwichat/backend/internal/models"
)

const (
	defaultPageSize = 15
	minPageSize     = 1
	maxPageSize     = 100

	// statusGrace absorbs clock skew between the caller's beforeDate and the
	// store's sent_at timestamps during bulk status upgrades.
	statusGrace = time.Second
)

// MessageStore captures the persistence operations for the message log.
// Append must be an atomic add-one-element write; UpdateStatus must be a
// single filtered bulk update evaluated atomically by the store.
type MessageStore interface {
	Append(ctx context.Context, msg models.Message) error
	ListBefore(ctx context.Context, conversationID string, before *time.Time, limit int) ([]models.Message, error)
	UpdateStatus(ctx context.Context, conversationID, receiverID string, status models.MessageStatus, before time.Time) (int64, error)
}

// MessageView is a message with its content decrypted for the requester.
type MessageView struct {
	ID         string
	ReceiverID string
	Content    string
	Status     models.MessageStatus
	SentAt     time.Time
}

// MessageService implements sending, paginated retrieval, and bulk status
// upgrades over a conversation's message log.
type MessageService struct {
	conversations ConversationStore
	messages      MessageStore
	crypter       Encrypter

	// NowFunc overrides the time source in tests.
	NowFunc func() time.Time
}

// NewMessageService wires a MessageService.
func NewMessageService(conversations ConversationStore, messages MessageStore, crypter Encrypter) *MessageService {
	return &MessageService{conversations: conversations, messages: messages, crypter: crypter}
}

// Append encrypts the plaintext through the gateway and appends the message
// with status Sent, bumping the conversation's last activity. The receiver is
// always derived from the conversation's participant pair at write time. A
// gateway failure leaves the log untouched.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID, plaintext string) (models.Message, error) {
	if strings.TrimSpace(plaintext) == "" {
		return models.Message{}, models.FieldErrors{"content": "must not be empty"}
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}

	receiverID, _, ok := conv.OtherParticipant(senderID)
	if !ok {
		return models.Message{}, ErrNotParticipant
	}

	ciphertext, err := s.crypter.Encrypt(ctx, senderID, receiverID, plaintext)
	if err != nil {
		return models.Message{}, fmt.Errorf("encrypt message: %w", err)
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		ReceiverID:     receiverID,
		Ciphertext:     ciphertext,
		Status:         models.StatusSent,
		SentAt:         s.now(),
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}

	return msg, nil
}

// List returns up to limit messages newest-first, optionally bounded to those
// sent strictly before the cursor. The limit is clamped to [1,100]; a zero
// limit selects the default of 15. Decryption happens in one gateway round
// trip and is matched back to messages by position.
func (s *MessageService) List(ctx context.Context, conversationID, requesterID string, limit int, before *time.Time) ([]MessageView, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, ErrNotParticipant
	}

	switch {
	case limit == 0:
		limit = defaultPageSize
	case limit < minPageSize:
		limit = minPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	if before != nil && before.After(s.now()) {
		return nil, ErrInvalidCursor
	}

	msgs, err := s.messages.ListBefore(ctx, conv.ID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	batch := make([]gateway.CipherMessage, len(msgs))
	for i, msg := range msgs {
		batch[i] = gateway.CipherMessage{
			Ciphertext: msg.Ciphertext,
			ReceiverID: msg.ReceiverID,
			SentAt:     msg.SentAt,
			Status:     int(msg.Status),
		}
	}

	plaintexts, err := s.crypter.DecryptBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("decrypt messages: %w", err)
	}

	views := make([]MessageView, len(msgs))
	for i, msg := range msgs {
		views[i] = MessageView{
			ID:         msg.ID,
			ReceiverID: msg.ReceiverID,
			Content:    plaintexts[i],
			Status:     msg.Status,
			SentAt:     msg.SentAt,
		}
	}

	return views, nil
}

// UpdateStatus upgrades every message addressed to the requester whose status
// is strictly below newStatus and whose sent time is at most beforeDate plus a
// one-second grace. The store evaluates this as one atomic bulk update, so the
// call is idempotent and may jump straight from Sent to Read.
func (s *MessageService) UpdateStatus(ctx context.Context, conversationID, requesterID string, newStatus models.MessageStatus, beforeDate time.Time) (int64, error) {
	if !newStatus.Valid() {
		return 0, models.FieldErrors{"status": "must be one of sent, delivered, read"}
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(requesterID) {
		return 0, ErrNotParticipant
	}

	updated, err := s.messages.UpdateStatus(ctx, conv.ID, requesterID, newStatus, beforeDate.Add(statusGrace))
	if err != nil {
		return 0, fmt.Errorf("update message status: %w", err)
	}

	return updated, nil
}

func (s *MessageService) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
