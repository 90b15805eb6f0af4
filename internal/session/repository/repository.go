package repository

import (
	"context"
	"time"

	"auth-session-service/internal/session/domain"
)

// SecretHasher maps a presented secret to the digest stored in secret_hash.
type SecretHasher interface {
	Hash(secret string) string
}

// Repository defines persistence for sessions. Lookups that find nothing return (nil, nil).
// Implementations wrap timeouts and connectivity failures in domain.ErrStoreUnavailable.
type Repository interface {
	// Insert persists a new session. domain.ErrDuplicateSecretHash if the digest exists; never overwrites.
	Insert(ctx context.Context, s *domain.Session) error
	// FindValidBySecret returns the non-revoked, unexpired session for secret, or nil.
	FindValidBySecret(ctx context.Context, secret string, now time.Time) (*domain.Session, error)
	// LookupBySecret returns the session for secret regardless of validity. For replay logging only.
	LookupBySecret(ctx context.Context, secret string) (*domain.Session, error)
	// FindAllValidByUser returns the user's currently valid sessions, newest first.
	FindAllValidByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	// Revoke marks one session revoked. Idempotent.
	Revoke(ctx context.Context, id string, reason domain.RevocationReason, now time.Time) error
	// RevokeAllForUser revokes every non-revoked session of the user and returns how many changed.
	RevokeAllForUser(ctx context.Context, userID string, reason domain.RevocationReason, now time.Time) (int64, error)
	// Rotate atomically revokes oldID (setting replaced_by) and inserts next. If oldID is no longer
	// valid at now, nothing changes and domain.ErrRotationConflict is returned.
	Rotate(ctx context.Context, oldID string, next *domain.Session, now time.Time) error
	// PruneBefore deletes sessions whose expiry and revocation both precede cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
