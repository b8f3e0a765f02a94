package handlers

import (
	"net/http"

	"github.com/chiwichat/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.LoginLimiter, Development: deps.Development}
	users := UserHandler{Users: deps.Users, Development: deps.Development}
	conversations := ConversationHandler{Conversations: deps.Conversations, Users: deps.Users, Development: deps.Development}
	messages := MessageHandler{Messages: deps.Messages, Development: deps.Development}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("POST /login", auth.Login)
	mux.HandleFunc("POST /auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /users", users.Register)

	authed := middleware.BearerAuth(deps.Tokens)
	protect := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, authed(handler))
	}

	protect("GET /auth/check", auth.Check)
	protect("POST /auth/logout", auth.Logout)
	protect("GET /users", users.Search)
	protect("GET /users/me", users.Me)
	protect("POST /conversations", conversations.Create)
	protect("GET /conversations", conversations.List)
	protect("GET /conversations/{id}", conversations.Get)
	protect("POST /messages", messages.Send)
	protect("GET /conversations/{id}/messages", messages.List)
	protect("PATCH /conversations/{id}/messages", messages.UpdateStatus)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Tokens        middleware.TokenValidator
	Conversations ConversationService
	Messages      MessageService
	LoginLimiter  RateLimiter
	Development   bool
}
