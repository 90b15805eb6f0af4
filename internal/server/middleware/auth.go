package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "bearer "

// TokenVerifier validates an access token. security.TokenProvider implements it.
type TokenVerifier interface {
	Verify(token string) (userID, sessionID string, err error)
}

// RequireAccessToken rejects requests without a valid Bearer access token with 401 and
// otherwise stores the token's identity in the request context.
func RequireAccessToken(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c)
			return
		}
		userID, sessionID, err := tokens.Verify(token)
		if err != nil {
			abortUnauthorized(c)
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), userID, sessionID))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// extractBearer returns the Bearer token from an Authorization header, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
