package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chiwichat/backend/internal/gateway"
	"github.com/chiwichat/backend/internal/models"
)

// fakeConversationStore keeps conversations in memory with the same unordered
// pair semantics the SQL store enforces.
type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	records       map[string][]ConversationRecord
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{
		conversations: make(map[string]models.Conversation),
		records:       make(map[string][]ConversationRecord),
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *fakeConversationStore) CreateOrGet(_ context.Context, conv models.Conversation) (models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.conversations {
		if pairKey(existing.UserAID, existing.UserBID) == pairKey(conv.UserAID, conv.UserBID) {
			return existing, false, nil
		}
	}
	s.conversations[conv.ID] = conv
	return conv, true, nil
}

func (s *fakeConversationStore) Get(_ context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *fakeConversationStore) ListForUser(_ context.Context, userID string) ([]ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.records[userID], nil
}

// fakeEncrypter wraps plaintext reversibly so tests can assert both directions
// without a live gateway.
type fakeEncrypter struct {
	encryptErr error
	decryptErr error

	encryptCalls int
	decryptCalls int
	lastBatch    []gateway.CipherMessage
}

func (f *fakeEncrypter) Encrypt(_ context.Context, senderID, receiverID, plaintext string) (string, error) {
	f.encryptCalls++
	if f.encryptErr != nil {
		return "", f.encryptErr
	}
	return "enc(" + plaintext + ")", nil
}

func (f *fakeEncrypter) DecryptBatch(_ context.Context, batch []gateway.CipherMessage) ([]string, error) {
	f.decryptCalls++
	f.lastBatch = batch
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	plaintexts := make([]string, len(batch))
	for i, msg := range batch {
		plaintexts[i] = "dec(" + msg.Ciphertext + ")"
	}
	return plaintexts, nil
}

func TestConversationServiceCreateOrGet(t *testing.T) {
	store := newFakeConversationStore()
	svc := NewConversationService(store, &fakeEncrypter{})
	ctx := context.Background()

	conv, created, err := svc.CreateOrGet(ctx, "user-1", "Alice", "user-2", "Bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the conversation")
	}
	if conv.ID == "" {
		t.Fatal("expected a generated conversation id")
	}

	// The reverse pair resolves to the same conversation.
	again, created, err := svc.CreateOrGet(ctx, "user-2", "Bob", "user-1", "Alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if created {
		t.Fatal("expected second call to find the existing conversation")
	}
	if again.ID != conv.ID {
		t.Fatalf("expected same conversation, got %s and %s", conv.ID, again.ID)
	}
}

func TestConversationServiceRejectsSelfConversation(t *testing.T) {
	svc := NewConversationService(newFakeConversationStore(), &fakeEncrypter{})

	_, _, err := svc.CreateOrGet(context.Background(), "user-1", "Alice", "user-1", "Alice")

	var fields models.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if _, ok := fields["userId"]; !ok {
		t.Fatalf("expected userId field error, got %v", fields)
	}
}

func TestConversationServiceGetEnforcesParticipation(t *testing.T) {
	store := newFakeConversationStore()
	svc := NewConversationService(store, &fakeEncrypter{})
	ctx := context.Background()

	conv, _, err := svc.CreateOrGet(ctx, "user-1", "Alice", "user-2", "Bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, conv.ID, "user-1"); err != nil {
		t.Fatalf("get as participant: %v", err)
	}

	if _, err := svc.Get(ctx, conv.ID, "user-3"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	if _, err := svc.Get(ctx, "missing", "user-1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestConversationServiceListDecryptsLastMessagesInOneBatch(t *testing.T) {
	store := newFakeConversationStore()
	crypter := &fakeEncrypter{}
	svc := NewConversationService(store, crypter)

	now := time.Now().UTC()
	store.records["user-1"] = []ConversationRecord{
		{
			Conversation: models.Conversation{ID: "conv-1", UserAID: "user-1", UserBID: "user-2"},
			UnreadCount:  2,
			LastMessage: &models.Message{
				ID: "msg-1", ConversationID: "conv-1", ReceiverID: "user-1",
				Ciphertext: "aaa==", Status: models.StatusSent, SentAt: now,
			},
		},
		{
			// Never messaged: no last message, nothing to decrypt.
			Conversation: models.Conversation{ID: "conv-2", UserAID: "user-1", UserBID: "user-3"},
		},
		{
			Conversation: models.Conversation{ID: "conv-3", UserAID: "user-4", UserBID: "user-1"},
			LastMessage: &models.Message{
				ID: "msg-2", ConversationID: "conv-3", ReceiverID: "user-4",
				Ciphertext: "bbb==", Status: models.StatusRead, SentAt: now,
			},
		},
	}

	summaries, err := svc.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if crypter.decryptCalls != 1 {
		t.Fatalf("expected one decrypt round trip, got %d", crypter.decryptCalls)
	}
	if len(crypter.lastBatch) != 2 {
		t.Fatalf("expected 2 batch entries, got %d", len(crypter.lastBatch))
	}

	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].UnreadCount != 2 {
		t.Fatalf("expected unread count 2, got %d", summaries[0].UnreadCount)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Content != "dec(aaa==)" {
		t.Fatalf("unexpected first last message: %+v", summaries[0].LastMessage)
	}
	if summaries[1].LastMessage != nil {
		t.Fatalf("expected no last message for empty conversation, got %+v", summaries[1].LastMessage)
	}
	if summaries[2].LastMessage == nil || summaries[2].LastMessage.Content != "dec(bbb==)" {
		t.Fatalf("unexpected third last message: %+v", summaries[2].LastMessage)
	}
}

func TestConversationServiceListWithoutLastMessages(t *testing.T) {
	store := newFakeConversationStore()
	crypter := &fakeEncrypter{}
	svc := NewConversationService(store, crypter)

	now := time.Now().UTC()
	store.records["user-1"] = []ConversationRecord{
		{Conversation: models.Conversation{ID: "conv-1", UserAID: "user-1", UserBID: "user-2", LastActivityAt: now}},
	}

	summaries, err := svc.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].LastMessage != nil {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
	if len(crypter.lastBatch) != 0 {
		t.Fatalf("expected empty decrypt batch, got %d entries", len(crypter.lastBatch))
	}
}

func TestConversationServiceListPropagatesGatewayFailure(t *testing.T) {
	store := newFakeConversationStore()
	crypter := &fakeEncrypter{decryptErr: fmt.Errorf("decrypt: %w", gateway.ErrUnavailable)}
	svc := NewConversationService(store, crypter)

	store.records["user-1"] = []ConversationRecord{
		{
			Conversation: models.Conversation{ID: "conv-1", UserAID: "user-1", UserBID: "user-2"},
			LastMessage:  &models.Message{ID: "msg-1", Ciphertext: "aaa=="},
		},
	}

	if _, err := svc.ListForUser(context.Background(), "user-1"); !gateway.IsFailure(err) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
}
