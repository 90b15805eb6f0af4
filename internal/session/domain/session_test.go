package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewSession_Expiry(t *testing.T) {
	cfg := Config{SlideWindow: 7 * day, MaxLifetime: 30 * day}
	s := NewSession("s1", "u1", "h1", Fingerprint{UserAgent: "UA1", IP: "10.0.0.1"}, t0, cfg)

	assert.Equal(t, "s1", s.LineageID)
	assert.Equal(t, t0, s.IssuedAt)
	assert.Equal(t, t0.Add(7*day), s.ExpiresAt)
	assert.Equal(t, t0.Add(30*day), s.AbsoluteExpiry)
	assert.Equal(t, StateIssued, s.StateAt(t0))
}

func TestNewSession_SlideEqualsLifetime(t *testing.T) {
	cfg := Config{SlideWindow: 7 * day, MaxLifetime: 7 * day}
	s := NewSession("s1", "u1", "h1", Fingerprint{}, t0, cfg)
	assert.Equal(t, s.AbsoluteExpiry, s.ExpiresAt)
}

func TestNextExpiry(t *testing.T) {
	abs := t0.Add(30 * day)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"well before cap", t0.Add(6 * day), t0.Add(13 * day)},
		{"clamped to cap", t0.Add(28 * day), abs},
		{"exactly at cap", abs, abs},
		{"after cap", abs.Add(time.Hour), abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextExpiry(tt.now, 7*day, abs)
			assert.Equal(t, tt.want, got)
			assert.False(t, got.After(abs), "expiry must never exceed the absolute cap")
		})
	}
}

func TestStateAt(t *testing.T) {
	next := "s2"
	revokedAt := t0.Add(time.Hour)
	base := Session{ExpiresAt: t0.Add(day)}

	rotated := base
	rotated.Revoked, rotated.ReplacedBy, rotated.RevokedAt = true, &next, &revokedAt

	revoked := base
	revoked.Revoked, revoked.RevokedAt = true, &revokedAt

	assert.Equal(t, StateIssued, base.StateAt(t0))
	assert.True(t, base.ValidAt(t0))
	assert.Equal(t, StateExpired, base.StateAt(t0.Add(day)), "expires_at itself is already expired")
	assert.False(t, base.ValidAt(t0.Add(day)))
	assert.Equal(t, StateRotated, rotated.StateAt(t0))
	assert.False(t, rotated.ValidAt(t0))
	assert.Equal(t, StateRevoked, revoked.StateAt(t0))
	assert.Equal(t, StateRevoked, revoked.StateAt(t0.Add(2*day)), "revocation wins over expiry")
}

func TestSuccessor_CarriesLineage(t *testing.T) {
	cfg := Config{SlideWindow: 7 * day, MaxLifetime: 30 * day}
	root := NewSession("s1", "u1", "h1", Fingerprint{UserAgent: "UA1", IP: "1.1.1.1"}, t0, cfg)

	now := t0.Add(6 * day)
	fp := Fingerprint{UserAgent: "UA2", IP: "2.2.2.2"}
	next := root.Successor("s2", "h2", fp, now, NextExpiry(now, cfg.SlideWindow, root.AbsoluteExpiry))

	assert.Equal(t, "u1", next.UserID)
	assert.Equal(t, "s1", next.LineageID)
	assert.Equal(t, root.AbsoluteExpiry, next.AbsoluteExpiry)
	assert.Equal(t, t0.Add(13*day), next.ExpiresAt)
	assert.Equal(t, fp, next.Fingerprint)
	assert.False(t, next.Revoked)
	assert.Nil(t, next.ReplacedBy)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{SlideWindow: 7 * day, MaxLifetime: 30 * day}.Validate())
	require.NoError(t, Config{SlideWindow: day, MaxLifetime: day}.Validate())

	assert.Error(t, Config{SlideWindow: 0, MaxLifetime: day}.Validate())
	assert.Error(t, Config{SlideWindow: -time.Second, MaxLifetime: day}.Validate())
	assert.ErrorContains(t, Config{SlideWindow: 7 * day, MaxLifetime: day}.Validate(), "max lifetime")
}
