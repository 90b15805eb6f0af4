package middleware

import (
	"net"
	"net/http"
	"strings"

	"auth-session-service/internal/session/domain"
)

// ClientIP returns the address recorded in a session fingerprint: the left-most X-Forwarded-For
// entry, then the peer address, then X-Real-IP. Returns "" when none is usable. The value is
// client-controlled and feeds anomaly logging only; throttling keys on gin's c.ClientIP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if s := strings.TrimSpace(first); s != "" {
			return s
		}
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

// Fingerprint captures the (user agent, IP) pair a session is bound to for anomaly logging.
func Fingerprint(r *http.Request) domain.Fingerprint {
	return domain.Fingerprint{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        ClientIP(r),
	}
}
