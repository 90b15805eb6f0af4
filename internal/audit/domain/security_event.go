package domain

import (
	"time"

	sessiondomain "auth-session-service/internal/session/domain"
)

// EventKind names a suspicious-activity event raised by the session engine.
type EventKind string

const (
	// KindFingerprintMismatch: a successful refresh came from a different user agent or IP.
	KindFingerprintMismatch EventKind = "fingerprint_mismatch"
	// KindRefreshTokenReuse: a secret that was already rotated was presented again.
	KindRefreshTokenReuse EventKind = "refresh_token_reuse"
	// KindRefreshTokenRevoked: a secret of a logged-out session was presented.
	KindRefreshTokenRevoked EventKind = "refresh_token_revoked"
	// KindRefreshTokenExpired: a secret was presented after its sliding expiry.
	KindRefreshTokenExpired EventKind = "refresh_token_expired"
	// KindSessionLifetimeCap: a refresh reached the absolute lifetime and the session was revoked.
	KindSessionLifetimeCap EventKind = "session_lifetime_cap"
)

// Severity grades an event for log routing. It never changes request outcomes.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SecurityEvent is the structured record handed to the sink. It carries ids and fingerprints
// only; the raw secret and its digest never appear here.
type SecurityEvent struct {
	Kind      EventKind
	SessionID string
	UserID    string
	Severity  Severity
	// Previous is the fingerprint recorded on the session; Current is the one presented.
	Previous     *sessiondomain.Fingerprint
	Current      *sessiondomain.Fingerprint
	IPChanged    bool
	AgentChanged bool
	At           time.Time
}

// DefaultSeverity is the built-in grading, used when no policy engine is configured or
// when policy evaluation fails.
func (e SecurityEvent) DefaultSeverity() Severity {
	switch e.Kind {
	case KindRefreshTokenReuse:
		return SeverityHigh
	case KindRefreshTokenRevoked:
		return SeverityMedium
	case KindFingerprintMismatch:
		if e.IPChanged && e.AgentChanged {
			return SeverityMedium
		}
		return SeverityLow
	default:
		return SeverityLow
	}
}
