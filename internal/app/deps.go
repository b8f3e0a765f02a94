package app

import (
	"time"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/config"
	"github.com/chiwichat/backend/internal/db"
	"github.com/chiwichat/backend/internal/gateway"
	"github.com/chiwichat/backend/internal/handlers"
	"github.com/chiwichat/backend/internal/middleware"
	"github.com/chiwichat/backend/internal/repositories"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(pool db.Pool, cfg config.Config) handlers.Dependencies {
	crypter := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayTimeout)

	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := auth.NewSessionManager(tokens, repositories.NewPostgresRefreshStore(pool))

	conversations := repositories.NewPostgresConversationRepository(pool)
	messages := repositories.NewPostgresMessageRepository(pool)

	return handlers.Dependencies{
		Users:         repositories.NewPostgresUserRepository(pool),
		Sessions:      sessions,
		Tokens:        tokens,
		Conversations: chat.NewConversationService(conversations, crypter),
		Messages:      chat.NewMessageService(conversations, messages, crypter),
		LoginLimiter:  middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		Development:   cfg.Development(),
	}
}
