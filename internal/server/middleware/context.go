// Package middleware holds the gin middleware shared by the HTTP handlers: bearer
// authentication, client fingerprinting, per-IP throttling and request logging.
package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	sessionIDKey = contextKey{"session_id"}
)

// WithIdentity returns a context with user_id and session_id set.
// Handlers read these via UserIDFrom and SessionIDFrom.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// UserIDFrom returns the user_id from context and true if set; otherwise "", false.
func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// SessionIDFrom returns the session_id from context and true if set; otherwise "", false.
func SessionIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok && v != ""
}
