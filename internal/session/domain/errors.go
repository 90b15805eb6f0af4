package domain

import "errors"

var (
	// ErrInvalidRefreshToken covers every reason a presented secret cannot be used: absent,
	// rotated, revoked or past either expiry bound. Callers must not distinguish them in responses.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRotationConflict means the predecessor was no longer valid when the rotate transaction ran,
	// i.e. a concurrent refresh won. Internal to the engine; surfaced as ErrInvalidRefreshToken.
	ErrRotationConflict = errors.New("session rotation conflict")
	// ErrDuplicateSecretHash is returned by the store when a secret digest already exists. Never overwrites.
	ErrDuplicateSecretHash = errors.New("duplicate session secret hash")
	// ErrStoreUnavailable wraps store timeouts and connectivity failures. Retryable.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrInvalidUserID is returned when issuing for an empty user id.
	ErrInvalidUserID = errors.New("invalid user id")
)
