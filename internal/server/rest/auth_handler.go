package rest

import (
	"net/http"

	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/services"
	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	users    *services.UserService
	tokens   *services.TokenService
	validate *validator.Validate
	logger   logging.Logger
}

func NewAuthHandler(users *services.UserService, tokens *services.TokenService, logger logging.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		tokens:   tokens,
		validate: newValidator(),
		logger:   logger,
	}
}

type userResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role}
}

type sessionResponse struct {
	User userResponse `json:"user"`
	*services.TokenPair
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	if !decode(w, r, h.validate, &body) {
		return
	}

	user, err := h.users.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserResponse(user)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,max=128"`
	}
	if !decode(w, r, h.validate, &body) {
		return
	}

	user, err := h.users.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pair, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(user), TokenPair: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=2048"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decode(w, r, h.validate, &body) {
		return
	}

	user, pair, err := h.tokens.RotateForUser(r.Context(), body.RefreshToken, h.users.Get)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(user), TokenPair: pair})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken" validate:"max=2048"`
	}
	if !decode(w, r, h.validate, &body) {
		return
	}

	if err := h.tokens.Logout(r.Context(), body.RefreshToken); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := UserFromContext(r.Context())
	if caller == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.Get(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}
