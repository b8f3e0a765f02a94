package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chiwichat/backend/internal/auth"
	"github.com/chiwichat/backend/internal/logging"
	"github.com/chiwichat/backend/internal/models"
	"github.com/chiwichat/backend/internal/repositories"
)

// UserHandler implements the user registry endpoints.
type UserHandler struct {
	Users       UserStore
	NowFunc     func() time.Time
	Development bool
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type userView struct {
	ID        string `json:"userId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Register handles POST /users.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if fields := validateRegistration(req); len(fields) > 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{"errors": fields})
		return
	}

	if fields := h.existingIdentities(r, req); len(fields) > 0 {
		respondJSON(ctx, w, http.StatusConflict, map[string]any{"errors": fields})
		return
	}

	user := models.User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CreatedAt: h.now(),
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusConflict, map[string]any{
				"errors": models.FieldErrors{"username": "already registered"},
			})
			return
		}
		logger.Error("failed to create user", "error", err)
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, userView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

// Search handles GET /users?q=.
func (h UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if l := len(term); l < 2 || l > 100 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
			"errors": models.FieldErrors{"q": "must be between 2 and 100 characters"},
		})
		return
	}

	users, err := h.Users.Search(ctx, term, 10)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, userView{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		})
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"users": views, "total": len(views)})
}

// Me handles GET /users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.Users.FindByID(ctx, identity.UserID)
	if err != nil {
		respondDomainError(ctx, w, err, h.Development)
		return
	}

	respondJSON(ctx, w, http.StatusOK, userView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

func validateRegistration(req registerRequest) models.FieldErrors {
	fields := models.FieldErrors{}

	if l := len(req.Username); l < 3 || l > 30 || !isAlphanumeric(req.Username) {
		fields["username"] = "must contain only letters and digits (3-30 characters)"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || req.Email == "" {
		fields["email"] = "must be a valid email address"
	}
	if l := len(req.FirstName); l < 2 || l > 20 {
		fields["firstName"] = "must be between 2 and 20 characters"
	}
	if l := len(req.LastName); l < 2 || l > 20 {
		fields["lastName"] = "must be between 2 and 20 characters"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// existingIdentities checks for duplicate username/email up front so the
// caller gets per-field conflicts; the unique constraints on the insert remain
// the authority under races.
func (h UserHandler) existingIdentities(r *http.Request, req registerRequest) models.FieldErrors {
	ctx := r.Context()
	fields := models.FieldErrors{}

	if _, err := h.Users.FindByLogin(ctx, req.Username); err == nil {
		fields["username"] = "already registered"
	}
	if _, err := h.Users.FindByLogin(ctx, req.Email); err == nil {
		fields["email"] = "already registered"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
