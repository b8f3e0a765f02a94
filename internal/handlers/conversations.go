package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/models"
	"github.com/chiwichat/backend/internal/repositories"
)

// ConversationHandler implements conversation creation, lookup, and listing.
type ConversationHandler struct {
	Conversations ConversationService
	Users         UserStore
	Development   bool
}

type createConversationRequest struct {
	UserID string `json:"userId"`
}

type conversationView struct {
	ID             string    `json:"conversationId"`
	UserAID        string    `json:"userAId"`
	UserAName      string    `json:"userAName"`
	UserBID        string    `json:"userBId"`
	UserBName      string    `json:"userBName"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func newConversationView(conv models.Conversation) conversationView {
	return conversationView{
		ID:             conv.ID,
		UserAID:        conv.UserAID,
		UserAName:      conv.UserAName,
		UserBID:        conv.UserBID,
		UserBName:      conv.UserBName,
		CreatedAt:      conv.CreatedAt,
		LastActivityAt: conv.LastActivityAt,
	}
}

type messageView struct {
	ID         string    `json:"messageId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	SentAt     time.Time `json:"sentAt"`
}

func newMessageView(view chat.MessageView) messageView {
	return messageView{
		ID:         view.ID,
		ReceiverID: view.ReceiverID,
		Content:    view.Content,
		Status:     view.Status.String(),
		SentAt:     view.SentAt,
	}
}

// Create handles POST /conversations: it returns the conversation for the
// unordered pair {caller, other user}, creating it on first contact. 201
// signals a fresh conversation, 200 an existing one.
func (h ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
			"errors": models.FieldErrors{"userId": "is required"},
		})
		return
	}

	other, err := h.Users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
				"errors": models.FieldErrors{"userId": "unknown user"},
			})
			return
		}
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	caller, err := h.Users.FindByID(ctx, identity.UserID)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	conv, created, err := h.Conversations.CreateOrGet(ctx, caller.ID, caller.DisplayName(), other.ID, other.DisplayName())
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, newConversationView(conv))
}

// Get handles GET /conversations/{id}.
func (h ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, err := h.Conversations.Get(ctx, r.PathValue("id"), identity.UserID)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	respondJSON(ctx, w, http.StatusOK, newConversationView(conv))
}

type conversationSummaryView struct {
	conversationView
	UnreadCount int64        `json:"unreadCount"`
	LastMessage *messageView `json:"lastMessage,omitempty"`
}

// List handles GET /conversations.
func (h ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	summaries, err := h.Conversations.ListForUser(ctx, identity.UserID)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	views := make([]conversationSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		view := conversationSummaryView{
			conversationView: newConversationView(summary.Conversation),
			UnreadCount:      summary.UnreadCount,
		}
		if summary.LastMessage != nil {
			last := newMessageView(*summary.LastMessage)
			view.LastMessage = &last
		}
		views = append(views, view)
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"conversations": views, "total": len(views)})
}
