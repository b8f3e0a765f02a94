package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chiwichat/backend/internal/chat"
	"github.com/chiwichat/backend/internal/gateway"
	"github.com/chiwichat/backend/internal/logging"
	"github.com/chiwichat/backend/internal/models"
	"github.com/chiwichat/backend/internal/repositories"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// respondDomainError maps domain failures onto the HTTP taxonomy: validation
// 400, authorization 403, missing records 404, upstream gateway failures 502,
// everything else a 500 whose detail is exposed only outside production.
func respondDomainError(ctx context.Context, w http.ResponseWriter, err error, development bool) {
	var fields models.FieldErrors
	switch {
	case errors.As(err, &fields):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{"errors": fields})
	case errors.Is(err, chat.ErrInvalidCursor):
		respondError(ctx, w, http.StatusBadRequest, "beforeDate must not be in the future")
	case errors.Is(err, chat.ErrNotParticipant):
		respondError(ctx, w, http.StatusForbidden, "not a participant of this conversation")
	case errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "not found")
	case gateway.IsFailure(err):
		logging.FromContext(ctx).Error("encryption gateway failure", "error", err)
		respondError(ctx, w, http.StatusBadGateway, "encryption service unavailable")
	default:
		logging.FromContext(ctx).Error("unhandled domain error", "error", err)
		message := "internal server error"
		if development {
			message = err.Error()
		}
		respondError(ctx, w, http.StatusInternalServerError, message)
	}
}
