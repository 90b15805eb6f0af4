package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// NewEphemeralTokenProvider returns a TokenProvider backed by a freshly generated P-256 key.
// Tokens stop verifying when the process exits, so it is only for development and tests.
func NewEphemeralTokenProvider(issuer, audience string, accessTTL time.Duration) (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, &key.PublicKey, issuer, audience, accessTTL)
}

// NewTestTokenProvider is NewEphemeralTokenProvider with fixed test issuer and audience.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewEphemeralTokenProvider("test-issuer", "test-audience", 15*time.Minute)
}
