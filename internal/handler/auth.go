// internal/handler/auth.go
package handler

import (
	"card-recommender/internal/auth"
	"card-recommender/internal/domain"
	"card-recommender/internal/storage"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type AccountStorage interface {
	storage.UserStorage
	storage.SettingsStorage
}

type AuthHandler struct {
	store  AccountStorage
	tokens *auth.TokenService
}

func NewAuthHandler(store AccountStorage, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{store: store, tokens: tokens}
}

type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	AccessToken string `json:"access_token"`
}

type authResponse struct {
	Success bool            `json:"success"`
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

func (h *AuthHandler) bindCredentials(c *gin.Context) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return req, false
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password required"})
		return req, false
	}
	return req, true
}

func (h *AuthHandler) respondWithSession(c *gin.Context, user *domain.User) {
	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		slog.Error("token generation failed", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, authResponse{
		Success: true,
		User:    userResponse{ID: user.ID, Email: user.Email},
		Session: sessionResponse{AccessToken: token},
	})
}

// Signup godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body CredentialsRequest true "Email and password"
// @Success 200 {object} authResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	req, ok := h.bindCredentials(c)
	if !ok {
		return
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("Signup: hash failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.CreateUser(ctx, req.Email, hash)
	if errors.Is(err, storage.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "User already registered"})
		return
	}
	if err != nil {
		slog.Error("Signup: create user failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	// Настройки по умолчанию: геолокация выключена
	if err := h.store.SetLocationEnabled(ctx, user.ID, false); err != nil {
		slog.Error("Signup: default settings failed", "error", err, "user_id", user.ID)
	}

	slog.Info("user registered", "user_id", user.ID)
	h.respondWithSession(c, user)
}

// Login godoc
// @Summary Log in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body CredentialsRequest true "Email and password"
// @Success 200 {object} authResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	req, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	user, err := h.store.FindUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid login credentials"})
		return
	}
	if err != nil {
		slog.Error("Login: find user failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, auth.ErrWrongPassword) {
			slog.Error("Login: password check failed", "error", err, "user_id", user.ID)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid login credentials"})
		return
	}

	h.respondWithSession(c, user)
}

// Logout ничего не отзывает: токены без состояния, клиент просто забывает свой
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	slog.Info("user logged out", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) CurrentUser(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		slog.Error("CurrentUser failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userResponse{ID: user.ID, Email: user.Email},
	})
}
