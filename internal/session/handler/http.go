// Package handler exposes the session facade over HTTP: login, refresh, logout, logout-all and
// the caller's session list. The refresh secret travels only in an HttpOnly cookie.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	identityservice "auth-session-service/internal/identity/service"
	"auth-session-service/internal/security"
	"auth-session-service/internal/server/httputil"
	"auth-session-service/internal/server/middleware"
	"auth-session-service/internal/session/domain"
	"auth-session-service/internal/session/service"
)

// Sessions is the facade surface the handler needs. service.Facade implements it.
type Sessions interface {
	Login(ctx context.Context, userID string, fp domain.Fingerprint) (*service.Tokens, error)
	Refresh(ctx context.Context, secret string, fp domain.Fingerprint) (*service.Tokens, error)
	Logout(ctx context.Context, secret string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	ListSessions(ctx context.Context, userID string) ([]*domain.Session, error)
}

// Credentials verifies an email and password. identity/service.AuthService implements it.
type Credentials interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
}

// Handler serves the /api/v1/auth session endpoints.
type Handler struct {
	sessions    Sessions
	credentials Credentials
	cookie      httputil.CookieOptions
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler returns a Handler.
func NewHandler(sessions Sessions, credentials Credentials, cookie httputil.CookieOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, credentials: credentials, cookie: cookie, logger: logger, now: time.Now}
}

// Register mounts the routes on rg (the /api/v1/auth group). requireAuth guards the routes that
// act on the caller's identity.
func (h *Handler) Register(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.POST("/login", h.Login)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/logout", h.Logout)
	rg.POST("/logout-all", requireAuth, h.LogoutAll)
	rg.GET("/sessions", requireAuth, h.ListSessions)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	Current   bool      `json:"current"`
}

// Login checks credentials, opens a session and sets the refresh cookie.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	userID, err := h.credentials.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	tokens, err := h.sessions.Login(ctx, userID, middleware.Fingerprint(c.Request))
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	h.respondTokens(c, tokens)
}

// Refresh rotates the refresh cookie and returns a new access token.
func (h *Handler) Refresh(c *gin.Context) {
	secret := httputil.RefreshSecretFromRequest(c.Request)
	tokens, err := h.sessions.Refresh(c.Request.Context(), secret, middleware.Fingerprint(c.Request))
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			httputil.ClearRefreshCookie(c.Writer, h.cookie)
		}
		h.fail(c, "refresh", err)
		return
	}
	h.respondTokens(c, tokens)
}

// Logout revokes the cookie's session and clears the cookie. Always 204 unless the store is down.
func (h *Handler) Logout(c *gin.Context) {
	secret := httputil.RefreshSecretFromRequest(c.Request)
	if err := h.sessions.Logout(c.Request.Context(), secret); err != nil {
		h.fail(c, "logout", err)
		return
	}
	httputil.ClearRefreshCookie(c.Writer, h.cookie)
	c.Status(http.StatusNoContent)
}

// LogoutAll revokes every session of the authenticated user.
func (h *Handler) LogoutAll(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	n, err := h.sessions.LogoutAll(ctx, userID)
	if err != nil {
		h.fail(c, "logout-all", err)
		return
	}
	httputil.ClearRefreshCookie(c.Writer, h.cookie)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// ListSessions returns the authenticated user's active sessions. The digest is never exposed.
func (h *Handler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	currentID, _ := middleware.SessionIDFrom(ctx)
	sessions, err := h.sessions.ListSessions(ctx, userID)
	if err != nil {
		h.fail(c, "list sessions", err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:        s.ID,
			IssuedAt:  s.IssuedAt,
			ExpiresAt: s.ExpiresAt,
			UserAgent: s.Fingerprint.UserAgent,
			IP:        s.Fingerprint.IP,
			Current:   s.ID == currentID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *Handler) respondTokens(c *gin.Context, t *service.Tokens) {
	httputil.SetRefreshCookie(c.Writer, h.cookie, t.RefreshSecret, t.RefreshExpiresAt, h.now())
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   t.AccessExpiresAt,
		UserID:      t.UserID,
		SessionID:   t.SessionID,
	})
}

// fail maps an error to a response. Only a store outage is distinguishable from the outside;
// everything else is 401.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()
	if errors.Is(err, domain.ErrStoreUnavailable) {
		h.logger.WarnContext(ctx, "session store unavailable", slog.String("op", op), slog.Any("error", err))
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	if !isExpectedRejection(err) {
		h.logger.ErrorContext(ctx, "auth request failed", slog.String("op", op), slog.Any("error", err))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func isExpectedRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidRefreshToken) ||
		errors.Is(err, domain.ErrInvalidUserID) ||
		errors.Is(err, identityservice.ErrInvalidCredentials) ||
		errors.Is(err, security.ErrInvalidToken)
}
