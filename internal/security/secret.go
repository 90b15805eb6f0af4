package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// SecretBytes is the amount of randomness in a refresh secret (256 bits).
const SecretBytes = 32

// ErrEntropySourceUnavailable is returned when the random source cannot be read.
// Issuance must abort; there is no fallback generator.
var ErrEntropySourceUnavailable = errors.New("entropy source unavailable")

// SecretGenerator mints opaque refresh secrets and computes their storage digest.
// The zero value is not usable; construct with NewSecretGenerator.
type SecretGenerator struct {
	key     []byte
	entropy io.Reader
}

// NewSecretGenerator returns a generator reading from crypto/rand. hmacKey may be nil (SHA-256 digests, dev only).
func NewSecretGenerator(hmacKey []byte) *SecretGenerator {
	return &SecretGenerator{key: hmacKey, entropy: rand.Reader}
}

// Generate returns a base64url (unpadded) secret of SecretBytes random bytes and its hex digest.
func (g *SecretGenerator) Generate() (secret, secretHash string, err error) {
	b := make([]byte, SecretBytes)
	if _, err := io.ReadFull(g.entropy, b); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrEntropySourceUnavailable, err)
	}
	secret = base64.RawURLEncoding.EncodeToString(b)
	return secret, HashSecret(secret, g.key), nil
}

// Hash returns the digest the store uses to look up a presented secret.
func (g *SecretGenerator) Hash(secret string) string {
	return HashSecret(secret, g.key)
}

// Keyed reports whether digests are HMAC-keyed.
func (g *SecretGenerator) Keyed() bool {
	return len(g.key) > 0
}
