// Package domain holds the refresh-token session model: the record, its lifecycle states and the
// sliding-expiry arithmetic the rotation engine applies.
package domain

import (
	"time"
)

// Fingerprint is the client (user agent, IP) pair captured at issuance and rotation.
// It is only compared for anomaly logging, never used to authorize.
type Fingerprint struct {
	UserAgent string
	IP        string
}

// RevocationReason records why a session stopped being valid.
type RevocationReason string

const (
	ReasonLogout      RevocationReason = "logout"
	ReasonLogoutAll   RevocationReason = "logout_all"
	ReasonRotation    RevocationReason = "rotation"
	ReasonLifetimeCap RevocationReason = "lifetime_cap"
)

// State is the lifecycle state of a session at a given instant. Expired is derived, never stored.
type State string

const (
	StateIssued  State = "issued"
	StateRotated State = "rotated"
	StateRevoked State = "revoked"
	StateExpired State = "expired"
)

// Session is one refresh-token record. The raw secret is never held here, only its digest.
type Session struct {
	ID     string
	UserID string
	// LineageID is the id of the first session of the rotation chain; equal to ID for a fresh login.
	LineageID        string
	SecretHash       string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	AbsoluteExpiry   time.Time
	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason RevocationReason
	ReplacedBy       *string
	Fingerprint      Fingerprint
}

// ValidAt reports whether the session can be presented at now: not revoked and not yet expired.
func (s *Session) ValidAt(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// StateAt derives the lifecycle state at now.
func (s *Session) StateAt(now time.Time) State {
	switch {
	case s.Revoked && s.ReplacedBy != nil:
		return StateRotated
	case s.Revoked:
		return StateRevoked
	case !now.Before(s.ExpiresAt):
		return StateExpired
	default:
		return StateIssued
	}
}

// NextExpiry is min(now + slide, absolute). A result not after now means the lineage has hit its cap.
func NextExpiry(now time.Time, slide time.Duration, absolute time.Time) time.Time {
	next := now.Add(slide)
	if next.After(absolute) {
		return absolute
	}
	return next
}

// NewSession builds the root of a new lineage issued at now.
func NewSession(id, userID, secretHash string, fp Fingerprint, now time.Time, cfg Config) *Session {
	now = now.UTC()
	absolute := now.Add(cfg.MaxLifetime)
	return &Session{
		ID:             id,
		UserID:         userID,
		LineageID:      id,
		SecretHash:     secretHash,
		IssuedAt:       now,
		ExpiresAt:      NextExpiry(now, cfg.SlideWindow, absolute),
		AbsoluteExpiry: absolute,
		Fingerprint:    fp,
	}
}

// Successor builds the session that replaces s on rotation. User, lineage and absolute expiry
// carry over unchanged; the fingerprint is the one presented with the refresh.
func (s *Session) Successor(id, secretHash string, fp Fingerprint, now, expiresAt time.Time) *Session {
	return &Session{
		ID:             id,
		UserID:         s.UserID,
		LineageID:      s.LineageID,
		SecretHash:     secretHash,
		IssuedAt:       now.UTC(),
		ExpiresAt:      expiresAt.UTC(),
		AbsoluteExpiry: s.AbsoluteExpiry,
		Fingerprint:    fp,
	}
}
