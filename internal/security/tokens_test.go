package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenProvider_MintAndVerify(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	token, exp, err := p.Mint("user-1", "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	userID, sessionID, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "session-1", sessionID)
}

func TestTokenProvider_MintRejectsEmptySubject(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	_, _, err = p.Mint("  ", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_VerifyRejects(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)
	other, err := NewTestTokenProvider()
	require.NoError(t, err)

	foreign, _, err := other.Mint("user-1", "")
	require.NoError(t, err)

	expired := *p
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.Mint("user-1", "")
	require.NoError(t, err)

	wrongIssuer := *p
	wrongIssuer.issuer = "someone-else"
	misissued, _, err := wrongIssuer.Mint("user-1", "")
	require.NoError(t, err)

	wrongAudience := *p
	wrongAudience.audience = "other-api"
	misaudienced, _, err := wrongAudience.Mint("user-1", "")
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":        "invalid-token",
		"empty":          "",
		"foreign key":    foreign,
		"expired":        stale,
		"wrong issuer":   misissued,
		"wrong audience": misaudienced,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := p.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenProvider_VerifyRejectsAlgNone(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	claims := AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "test-issuer",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = p.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p, err := NewTokenProvider(key, &key.PublicKey, "iss", "aud", time.Minute)
	require.NoError(t, err)

	token, _, err := p.Mint("user-2", "")
	require.NoError(t, err)
	header := strings.SplitN(token, ".", 2)[0]
	assert.NotEmpty(t, header)

	userID, _, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestNewTokenProvider_MismatchedKeys(t *testing.T) {
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rs, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = NewTokenProvider(ec, &rs.PublicKey, "iss", "aud", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewTokenProvider(nil, nil, "iss", "aud", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
