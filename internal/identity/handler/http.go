// Package handler exposes account registration over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"auth-session-service/internal/identity/service"
)

// Registrar creates accounts. service.AuthService implements it.
type Registrar interface {
	Register(ctx context.Context, name, email, password string) (string, error)
}

// Handler serves POST /api/v1/auth/register.
type Handler struct {
	registrar Registrar
	logger    *slog.Logger
}

// NewHandler returns a Handler.
func NewHandler(registrar Registrar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registrar: registrar, logger: logger}
}

// Register mounts the route on rg (the /api/v1/auth group).
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/register", h.CreateAccount)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateAccount registers a user. 201 with the new id, 409 if the email is taken.
func (h *Handler) CreateAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID, err := h.registrar.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"user_id": userID})
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, service.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		h.logger.ErrorContext(c.Request.Context(), "register failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
