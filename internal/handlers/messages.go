package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/models"
)

// MessageHandler implements sending, listing, and status upgrades for
// conversation messages.
type MessageHandler struct {
	Messages    MessageService
	Development bool
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// Send handles POST /messages. The plaintext never reaches storage: the
// service encrypts through the gateway before appending.
func (h MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := models.FieldErrors{}
	if strings.TrimSpace(req.ConversationID) == "" {
		fields["conversationId"] = "is required"
	}
	if req.Content == "" {
		fields["content"] = "must not be empty"
	}
	if len(fields) > 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{"errors": fields})
		return
	}

	msg, err := h.Messages.Append(ctx, req.ConversationID, identity.UserID, req.Content)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"messageId": msg.ID,
		"status":    msg.Status.String(),
		"sentAt":    msg.SentAt,
	})
}

// List handles GET /conversations/{id}/messages with limit and beforeDate
// query parameters.
func (h MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
				"errors": models.FieldErrors{"limit": "must be an integer"},
			})
			return
		}
		limit = parsed
	}

	var before *time.Time
	if raw := r.URL.Query().Get("beforeDate"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
				"errors": models.FieldErrors{"beforeDate": "must be an RFC 3339 timestamp"},
			})
			return
		}
		before = &parsed
	}

	views, err := h.Messages.List(ctx, r.PathValue("id"), identity.UserID, limit, before)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	messages := make([]messageView, 0, len(views))
	for _, view := range views {
		messages = append(messages, newMessageView(view))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    len(messages),
	})
}

type updateStatusRequest struct {
	Status     string     `json:"status"`
	BeforeDate *time.Time `json:"beforeDate"`
}

// UpdateStatus handles PATCH /conversations/{id}/messages: it upgrades every
// message addressed to the caller that was sent at or before the given cutoff.
func (h MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := models.FieldErrors{}
	status, err := models.ParseMessageStatus(req.Status)
	if err != nil {
		fields["status"] = "must be one of sent, delivered, read"
	}
	if req.BeforeDate == nil {
		fields["beforeDate"] = "is required"
	}
	if len(fields) > 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{"errors": fields})
		return
	}

	updated, err := h.Messages.UpdateStatus(ctx, r.PathValue("id"), identity.UserID, status, *req.BeforeDate)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"updatedCount": updated})
}
