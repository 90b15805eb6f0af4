package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashSecret returns the hex digest under which a refresh secret is stored.
// With a key it is HMAC-SHA256(secret, key); without one it degrades to SHA-256(secret),
// which config only permits outside production. Output is always 64 hex chars.
func HashSecret(secret string, key []byte) string {
	if len(key) == 0 {
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(secret))
	return hex.EncodeToString(m.Sum(nil))
}
