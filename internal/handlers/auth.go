package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/config"
	"github.com/xsuryanshx/cognitive-load/internal/models"
	"github.com/xsuryanshx/cognitive-load/internal/repository"
)

type AuthHandler struct {
	log   *zap.Logger
	users *repository.UserStore
}

func NewAuthHandler(log *zap.Logger, users *repository.UserStore) *AuthHandler {
	return &AuthHandler{log: log, users: users}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.UserRegister
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration request"})
		return
	}

	user, err := h.users.Create(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
			return
		}
		h.log.Error("Failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	c.JSON(http.StatusOK, models.UserResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.UserLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login request"})
		return
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect email or password"})
		return
	}

	token, err := issueAccessToken(user.UserID)
	if err != nil {
		h.log.Error("Failed to sign access token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User: models.UserResponse{
			UserID:    user.UserID,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
	})
}

// Me returns the authenticated caller's own account info.
func (h *AuthHandler) Me(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	c.JSON(http.StatusOK, models.UserResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// issueAccessToken signs a short-lived HS256 token with the user id as
// subject.
func issueAccessToken(userID string) (string, error) {
	lifetime := time.Duration(config.Conf.Server.TokenLifetimeHours) * time.Hour
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Conf.Server.JWTSecret))
}
