package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, h.Compare(hash, "secret123"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), bcrypt.ErrMismatchedHashAndPassword)
}

func TestHasher_CostClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, bcrypt.DefaultCost},
		{-1, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{12, 12},
		{99, bcrypt.MaxCost},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewHasher(tt.in).Cost, "NewHasher(%d)", tt.in)
	}
}

func TestHasher_CompareDummyDoesNotPanic(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	h.CompareDummy("anything")
	h.CompareDummy("again")
	assert.NotEmpty(t, h.dummy)
}
