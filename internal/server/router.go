// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	healthhandler "auth-session-service/internal/health/handler"
	identityhandler "auth-session-service/internal/identity/handler"
	"auth-session-service/internal/server/middleware"
	sessionhandler "auth-session-service/internal/session/handler"
)

// AuthBasePath is the route group for every session and account endpoint. The refresh cookie is scoped to it.
const AuthBasePath = "/api/v1/auth"

// Deps holds the handlers and middleware the router mounts.
type Deps struct {
	Logger *slog.Logger
	// Sessions serves login, refresh, logout and session listing.
	Sessions *sessionhandler.Handler
	// Accounts serves registration. If nil, /register is not mounted.
	Accounts *identityhandler.Handler
	// Health serves /livez and /readyz. If nil, the probes are not mounted.
	Health *healthhandler.Server
	// Tokens verifies access tokens for authenticated routes.
	Tokens middleware.TokenVerifier
	// RateLimiter throttles the auth group per client IP. If nil, no limit is applied.
	RateLimiter *middleware.RateLimiter
	// TrustedProxies are the proxy IPs or CIDRs allowed to set X-Forwarded-For / X-Real-IP.
	// Empty trusts none, so the client IP is the peer address.
	TrustedProxies []string
}

// NewRouter returns a gin engine with recovery, request logging and every route mounted.
func NewRouter(d Deps) (*gin.Engine, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	if d.Health != nil {
		r.GET("/livez", d.Health.Livez)
		r.GET("/readyz", d.Health.Readyz)
	}

	auth := r.Group(AuthBasePath)
	if d.RateLimiter != nil {
		auth.Use(d.RateLimiter.Middleware())
	}
	if d.Sessions != nil {
		d.Sessions.Register(auth, middleware.RequireAccessToken(d.Tokens))
	}
	if d.Accounts != nil {
		d.Accounts.Register(auth)
	}
	return r, nil
}
