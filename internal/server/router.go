package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quillbin/quillbin/internal/metrics"
	"github.com/quillbin/quillbin/internal/pastes"
	"github.com/quillbin/quillbin/internal/users"
)

const userIDContextKey = "quillbin_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingPasteService  = errors.New("paste service dependency required")
	errMissingUserService   = errors.New("user service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokens mints and validates session JWTs.
type SessionTokens interface {
	IssueSessionToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP layer to the services it fronts.
type Dependencies struct {
	Tokens       SessionTokens
	PasteService *pastes.Service
	UserService  *users.Service
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.PasteService == nil {
		return nil, errMissingPasteService
	}
	if deps.UserService == nil {
		return nil, errMissingUserService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observeRequests())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Paste-Password"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.Tokens,
		pastes: deps.PasteService,
		users:  deps.UserService,
		logger: logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	public := router.Group("/")
	public.Use(handler.resolveOptionalSession)
	public.POST("/pastes", handler.handleCreatePaste)
	public.GET("/pastes/:id", handler.handleGetPaste)
	public.POST("/pastes/:id/fork", handler.handleForkPaste)
	public.GET("/pastes/:id/versions", handler.handleListVersions)
	public.GET("/pastes/:id/versions/:version", handler.handleGetVersion)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.PATCH("/pastes/:id", handler.handleUpdatePaste)
	protected.DELETE("/pastes/:id", handler.handleDeletePaste)
	protected.POST("/pastes/:id/transfer", handler.handleTransferPaste)
	protected.GET("/pastes/:id/invites", handler.handleListInvites)
	protected.POST("/pastes/:id/invites", handler.handleAddInvites)
	protected.DELETE("/pastes/:id/invites", handler.handleRemoveInvites)

	return router, nil
}

type httpHandler struct {
	tokens SessionTokens
	pastes *pastes.Service
	users  *users.Service
	logger *zap.Logger
}

// authorizeRequest rejects the request unless a valid Bearer token is
// presented.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// resolveOptionalSession accepts anonymous requests but records the caller
// identity when a valid token is present. Invalid tokens are still rejected
// rather than silently downgraded to anonymous.
func (h *httpHandler) resolveOptionalSession(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.Next()
		return
	}
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// resolveCaller loads the user behind the session, producing the caller
// identity and resolved permission set. Anonymous callers get the anonymous
// permission set.
func (h *httpHandler) resolveCaller(c *gin.Context) (*pastes.Caller, pastes.Permissions, error) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		return nil, pastes.AnonymousPermissions(), nil
	}
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			// Stale token for a deleted account; treat as anonymous.
			return nil, pastes.AnonymousPermissions(), nil
		}
		return nil, pastes.Permissions{}, err
	}
	caller := &pastes.Caller{UserID: user.ID, Admin: user.IsAdmin() && !user.Banned}
	return caller, pastes.PermissionsForRole(user.Role, user.Banned), nil
}

func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
