package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"taskboard/backend/internal/apperrors"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth   services.AuthService
	logger *slog.Logger
}

// Presence and format are checked by the service so the client sees the
// same messages however the request arrives; tags only bound sizes.
type RegisterRequest struct {
	Name     string `json:"name" binding:"max=100"`
	Email    string `json:"email" binding:"max=254"`
	Password string `json:"password" binding:"max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"max=254"`
	Password string `json:"password" binding:"max=72"`
}

type AuthResponse struct {
	User      models.PublicUser `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

func NewAuthHandler(auth services.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !BindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "user_registered", "user_id", result.User.ID.String())
	Respond(c, http.StatusCreated, "Account created successfully", authResponse(result))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !BindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	Respond(c, http.StatusOK, "Login successful", authResponse(result))
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		RespondError(c, h.logger, apperrors.Unauthenticated(middleware.UnauthenticatedMessage))
		return
	}

	Respond(c, http.StatusOK, "", gin.H{"user": user.Public()})
}

func authResponse(result *services.AuthResult) AuthResponse {
	return AuthResponse{
		User:      result.User.Public(),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}
