package handlers

import (
	"context"
	"time"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/models"
)

// UserStore captures the persistence operations required by the user and auth
// handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByLogin(ctx context.Context, login string) (models.User, error)
	FindByID(ctx context.Context, userID string) (models.User, error)
	Search(ctx context.Context, term string, limit int) ([]models.User, error)
}

// SessionManager issues, rotates, and revokes authentication token pairs.
type SessionManager interface {
	Login(ctx context.Context, identity auth.Identity) (models.SessionTokens, error)
	Rotate(ctx context.Context, presentedRefresh string) (models.SessionTokens, error)
	Revoke(ctx context.Context, userID string)
}

// ConversationService captures the conversation operations behind the HTTP
// surface.
type ConversationService interface {
	CreateOrGet(ctx context.Context, callerID, callerName, otherID, otherName string) (models.Conversation, bool, error)
	Get(ctx context.Context, conversationID, requesterID string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]chat.ConversationSummary, error)
}

// MessageService captures the message log operations behind the HTTP surface.
type MessageService interface {
	Append(ctx context.Context, conversationID, senderID, plaintext string) (models.Message, error)
	List(ctx context.Context, conversationID, requesterID string, limit int, before *time.Time) ([]chat.MessageView, error)
	UpdateStatus(ctx context.Context, conversationID, requesterID string, status models.MessageStatus, beforeDate time.Time) (int64, error)
}
