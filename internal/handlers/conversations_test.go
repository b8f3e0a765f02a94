package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/models"
)

type fakeConversationService struct {
	conversation models.Conversation
	created      bool
	summaries    []chat.ConversationSummary
	err          error

	gotCallerName string
	gotOtherName  string
}

func (f *fakeConversationService) CreateOrGet(_ context.Context, callerID, callerName, otherID, otherName string) (models.Conversation, bool, error) {
	f.gotCallerName = callerName
	f.gotOtherName = otherName
	if f.err != nil {
		return models.Conversation{}, false, f.err
	}
	return f.conversation, f.created, nil
}

func (f *fakeConversationService) Get(_ context.Context, conversationID, requesterID string) (models.Conversation, error) {
	if f.err != nil {
		return models.Conversation{}, f.err
	}
	return f.conversation, nil
}

func (f *fakeConversationService) ListForUser(_ context.Context, userID string) ([]chat.ConversationSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries, nil
}

func authedRequest(t *testing.T, req *http.Request, userID, username string) *http.Request {
	t.Helper()
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: userID, Username: username}))
}

func TestConversationHandlerCreate(t *testing.T) {
	users := newInMemoryUserStore()
	users.users["user-1"] = models.User{ID: "user-1", Username: "alice", FirstName: "Alice", LastName: "Liddell"}
	users.users["user-2"] = models.User{ID: "user-2", Username: "bob"}

	svc := &fakeConversationService{
		conversation: models.Conversation{ID: "conv-1", UserAID: "user-1", UserBID: "user-2"},
		created:      true,
	}
	handler := ConversationHandler{Conversations: svc, Users: users}

	req := authedRequest(t, postJSON(t, "/conversations", createConversationRequest{UserID: "user-2"}), "user-1", "alice")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if svc.gotCallerName != "Alice Liddell" {
		t.Fatalf("expected caller display name, got %q", svc.gotCallerName)
	}
	if svc.gotOtherName != "bob" {
		t.Fatalf("expected username fallback for other participant, got %q", svc.gotOtherName)
	}
}

func TestConversationHandlerCreateExisting(t *testing.T) {
	users := newInMemoryUserStore()
	users.users["user-1"] = models.User{ID: "user-1", Username: "alice"}
	users.users["user-2"] = models.User{ID: "user-2", Username: "bob"}

	svc := &fakeConversationService{
		conversation: models.Conversation{ID: "conv-1", UserAID: "user-1", UserBID: "user-2"},
		created:      false,
	}
	handler := ConversationHandler{Conversations: svc, Users: users}

	req := authedRequest(t, postJSON(t, "/conversations", createConversationRequest{UserID: "user-2"}), "user-1", "alice")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d for existing conversation, got %d", http.StatusOK, rec.Code)
	}

	var resp conversationView
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "conv-1" {
		t.Fatalf("expected conversation conv-1, got %q", resp.ID)
	}
}

func TestConversationHandlerCreateUnknownUser(t *testing.T) {
	users := newInMemoryUserStore()
	users.users["user-1"] = models.User{ID: "user-1", Username: "alice"}

	handler := ConversationHandler{Conversations: &fakeConversationService{}, Users: users}

	req := authedRequest(t, postJSON(t, "/conversations", createConversationRequest{UserID: "ghost"}), "user-1", "alice")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestConversationHandlerCreateSelf(t *testing.T) {
	users := newInMemoryUserStore()
	users.users["user-1"] = models.User{ID: "user-1", Username: "alice"}

	svc := &fakeConversationService{err: models.FieldErrors{"userId": "cannot open a conversation with yourself"}}
	handler := ConversationHandler{Conversations: svc, Users: users}

	req := authedRequest(t, postJSON(t, "/conversations", createConversationRequest{UserID: "user-1"}), "user-1", "alice")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestConversationHandlerGetForbidden(t *testing.T) {
	handler := ConversationHandler{Conversations: &fakeConversationService{err: chat.ErrNotParticipant}, Users: newInMemoryUserStore()}

	req := authedRequest(t, httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil), "user-3", "carol")
	req.SetPathValue("id", "conv-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
}

func TestConversationHandlerGetMissing(t *testing.T) {
	handler := ConversationHandler{Conversations: &fakeConversationService{err: chat.ErrConversationNotFound}, Users: newInMemoryUserStore()}

	req := authedRequest(t, httptest.NewRequest(http.MethodGet, "/conversations/ghost", nil), "user-1", "alice")
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}

func TestConversationHandlerList(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeConversationService{summaries: []chat.ConversationSummary{
		{
			Conversation: models.Conversation{ID: "conv-1", UserAID: "user-1", UserBID: "user-2", LastActivityAt: now},
			UnreadCount:  3,
			LastMessage:  &chat.MessageView{ID: "msg-1", Content: "hello", Status: models.StatusSent, SentAt: now},
		},
		{
			Conversation: models.Conversation{ID: "conv-2", UserAID: "user-1", UserBID: "user-3"},
		},
	}}
	handler := ConversationHandler{Conversations: svc, Users: newInMemoryUserStore()}

	req := authedRequest(t, httptest.NewRequest(http.MethodGet, "/conversations", nil), "user-1", "alice")
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Conversations []conversationSummaryView `json:"conversations"`
		Total         int                       `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 conversations, got %d", resp.Total)
	}
	if resp.Conversations[0].UnreadCount != 3 {
		t.Fatalf("expected unread count 3, got %d", resp.Conversations[0].UnreadCount)
	}
	if resp.Conversations[0].LastMessage == nil || resp.Conversations[0].LastMessage.Content != "hello" {
		t.Fatalf("unexpected last message %+v", resp.Conversations[0].LastMessage)
	}
	if resp.Conversations[1].LastMessage != nil {
		t.Fatal("expected no last message for empty conversation")
	}
}
