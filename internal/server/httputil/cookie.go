// Package httputil sets and reads the refresh-token cookie.
package httputil

import (
	"net/http"
	"time"
)

const (
	// RefreshCookieName is the cookie carrying the opaque refresh secret.
	RefreshCookieName = "refresh_token"
	// RefreshCookiePath scopes the cookie to the auth endpoints so no other route receives it.
	RefreshCookiePath = "/api/v1/auth"
)

// CookieOptions controls the attributes that vary between deployments.
type CookieOptions struct {
	// Secure must be true outside local plain-HTTP development.
	Secure bool
}

// SetRefreshCookie writes the refresh cookie so it expires with the session's sliding expiry.
func SetRefreshCookie(w http.ResponseWriter, opts CookieOptions, secret string, expiresAt, now time.Time) {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		ClearRefreshCookie(w, opts)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    secret,
		Path:     RefreshCookiePath,
		MaxAge:   maxAge,
		Expires:  expiresAt.UTC(),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefreshCookie expires the refresh cookie on the client.
func ClearRefreshCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// RefreshSecretFromRequest returns the refresh cookie value, or "" if absent.
func RefreshSecretFromRequest(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
