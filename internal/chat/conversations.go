// Package chat owns the conversation/message domain logic: lazy conversation
// creation over unordered participant pairs, the append-only message log with
// its delivery-status state machine, pagination, and the plaintext boundary to
// the encryption gateway.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chiwichat/backend/internal/gateway"
	"github.com/chiwichat/backend/internal/models"
)

// ConversationRecord is a conversation row decorated with the caller-specific
// listing data the store can compute in one query.
type ConversationRecord struct {
	Conversation models.Conversation
	UnreadCount  int64
	LastMessage  *models.Message
}

// ConversationStore captures the persistence operations for conversations.
// CreateOrGet must behave as a single atomic "insert if absent" over the
// unordered participant pair; a check-then-insert sequence is a correctness
// bug under concurrent creation.
type ConversationStore interface {
	CreateOrGet(ctx context.Context, conv models.Conversation) (models.Conversation, bool, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]ConversationRecord, error)
}

// Encrypter is the encryption gateway surface the chat services need.
type Encrypter interface {
	Encrypt(ctx context.Context, senderID, receiverID, plaintext string) (string, error)
	DecryptBatch(ctx context.Context, batch []gateway.CipherMessage) ([]string, error)
}

// ConversationSummary is one entry of a user's conversation listing, carrying
// the decrypted last message and the count of messages addressed to the caller
// not yet read.
type ConversationSummary struct {
	Conversation models.Conversation
	UnreadCount  int64
	LastMessage  *MessageView
}

// ConversationService implements conversation creation, lookup, and listing.
type ConversationService struct {
	store   ConversationStore
	crypter Encrypter

	// NowFunc overrides the time source in tests.
	NowFunc func() time.Time
}

// NewConversationService wires a ConversationService.
func NewConversationService(store ConversationStore, crypter Encrypter) *ConversationService {
	return &ConversationService{store: store, crypter: crypter}
}

// CreateOrGet returns the conversation for the unordered pair {caller, other},
// creating it lazily on first contact. created reports whether a new
// conversation was inserted.
func (s *ConversationService) CreateOrGet(ctx context.Context, callerID, callerName, otherID, otherName string) (models.Conversation, bool, error) {
	if otherID == callerID {
		return models.Conversation{}, false, models.FieldErrors{"userId": "cannot open a conversation with yourself"}
	}

	now := s.now()
	conv := models.Conversation{
		ID:             uuid.NewString(),
		UserAID:        callerID,
		UserAName:      callerName,
		UserBID:        otherID,
		UserBName:      otherName,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	stored, created, err := s.store.CreateOrGet(ctx, conv)
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("create or get conversation: %w", err)
	}

	return stored, created, nil
}

// Get returns the conversation if it exists and the requester participates in
// it. A missing conversation reports not-found before any participant check.
func (s *ConversationService) Get(ctx context.Context, conversationID, requesterID string) (models.Conversation, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(requesterID) {
		return models.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// ListForUser returns every conversation the user participates in, most
// recently active first. Last messages are decrypted through the gateway in a
// single batch round trip.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error) {
	records, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	batch := make([]gateway.CipherMessage, 0, len(records))
	withLast := make([]int, 0, len(records))
	for i, rec := range records {
		if rec.LastMessage == nil {
			continue
		}
		batch = append(batch, gateway.CipherMessage{
			Ciphertext: rec.LastMessage.Ciphertext,
			ReceiverID: rec.LastMessage.ReceiverID,
			SentAt:     rec.LastMessage.SentAt,
			Status:     int(rec.LastMessage.Status),
		})
		withLast = append(withLast, i)
	}

	plaintexts, err := s.crypter.DecryptBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("decrypt last messages: %w", err)
	}

	summaries := make([]ConversationSummary, len(records))
	for i, rec := range records {
		summaries[i] = ConversationSummary{
			Conversation: rec.Conversation,
			UnreadCount:  rec.UnreadCount,
		}
	}
	// The decrypt response aligns with the request batch by position.
	for batchIdx, recIdx := range withLast {
		msg := records[recIdx].LastMessage
		summaries[recIdx].LastMessage = &MessageView{
			ID:         msg.ID,
			ReceiverID: msg.ReceiverID,
			Content:    plaintexts[batchIdx],
			Status:     msg.Status,
			SentAt:     msg.SentAt,
		}
	}

	return summaries, nil
}

func (s *ConversationService) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
