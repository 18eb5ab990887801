package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillbin/quillbin/internal/auth"
	"github.com/quillbin/quillbin/internal/users"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponsePayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Username) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username_taken"})
		case errors.Is(err, users.ErrInvalidUsername),
			errors.Is(err, auth.ErrEmptyPassword),
			errors.Is(err, auth.ErrPasswordTooLong):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, registerResponsePayload{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Username) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		case errors.Is(err, users.ErrUserBanned):
			c.JSON(http.StatusForbidden, gin.H{"error": "account_banned"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		}
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}
