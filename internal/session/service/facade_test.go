package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditdomain "auth-session-service/internal/audit/domain"
	"auth-session-service/internal/security"
	"auth-session-service/internal/session/domain"
)

func TestFacade_Login(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "user-1", laptop)

	assert.NotEmpty(t, tok.AccessToken)
	assert.Len(t, tok.RefreshSecret, 43)
	assert.Equal(t, "user-1", tok.UserID)
	assert.Equal(t, t0.Add(7*day), tok.RefreshExpiresAt)

	s := h.repo.get(tok.SessionID)
	require.NotNil(t, s)
	assert.Equal(t, s.ID, s.LineageID)
	assert.Equal(t, t0.Add(30*day), s.AbsoluteExpiry)
	assert.Equal(t, security.HashSecret(tok.RefreshSecret, nil), s.SecretHash)
	assert.NotEqual(t, tok.RefreshSecret, s.SecretHash)
	assert.Equal(t, laptop, s.Fingerprint)
}

func TestFacade_Login_InvalidUserID(t *testing.T) {
	h := newHarness(t)
	_, err := h.facade.Login(context.Background(), "  ", laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

// Slide window 7d, max lifetime 30d: refreshing every 6 days keeps the session alive until
// the absolute expiry, and never past it.
func TestFacade_Refresh_SlidingExpiryCappedAtMaxLifetime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.login(t, "user-1", laptop)
	lineage := tok.SessionID

	wantExpiry := []time.Duration{13 * day, 19 * day, 25 * day, 30 * day}
	for _, want := range wantExpiry {
		h.clock.Advance(6 * day)
		next, err := h.facade.Refresh(ctx, tok.RefreshSecret, laptop)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(want), next.RefreshExpiresAt)
		s := h.repo.get(next.SessionID)
		assert.Equal(t, lineage, s.LineageID)
		assert.Equal(t, t0.Add(30*day), s.AbsoluteExpiry)
		tok = next
	}

	// T0+29d: still valid, expiry stays at the cap.
	h.clock.Advance(5 * day)
	tok, err := h.facade.Refresh(ctx, tok.RefreshSecret, laptop)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*day), tok.RefreshExpiresAt)

	// T0+30d: past the absolute expiry.
	h.clock.Advance(day)
	_, err = h.facade.Refresh(ctx, tok.RefreshSecret, laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	assert.Equal(t, []auditdomain.EventKind{auditdomain.KindRefreshTokenExpired}, h.sink.Kinds())
}

func TestFacade_Refresh_AfterSlideWindowGap(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "user-1", laptop)

	h.clock.Advance(7 * day)
	_, err := h.facade.Refresh(context.Background(), tok.RefreshSecret, laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestFacade_Refresh_SingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.login(t, "user-1", laptop)

	second, err := h.facade.Refresh(ctx, first.RefreshSecret, laptop)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshSecret, second.RefreshSecret)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	_, err = h.facade.Refresh(ctx, first.RefreshSecret, laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)

	old := h.repo.get(first.SessionID)
	require.NotNil(t, old.ReplacedBy)
	assert.Equal(t, second.SessionID, *old.ReplacedBy)
	assert.Equal(t, domain.ReasonRotation, old.RevocationReason)

	events := h.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, auditdomain.KindRefreshTokenReuse, events[0].Kind)
	assert.Equal(t, first.SessionID, events[0].SessionID)

	// The successor is untouched by the replay.
	_, err = h.facade.Refresh(ctx, second.RefreshSecret, laptop)
	assert.NoError(t, err)
}

func TestFacade_Refresh_UnknownSecret(t *testing.T) {
	h := newHarness(t)
	for _, secret := range []string{"", "   ", "not-a-real-secret", string(make([]byte, 1024))} {
		_, err := h.facade.Refresh(context.Background(), secret, laptop)
		assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	}
	assert.Empty(t, h.sink.Events())
}

func TestFacade_Refresh_ConcurrentExactlyOneWinner(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "user-1", laptop)

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*Tokens
		losers  int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next, err := h.facade.Refresh(context.Background(), tok.RefreshSecret, laptop)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, next)
				return
			}
			if errors.Is(err, domain.ErrInvalidRefreshToken) {
				losers++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, callers-1, losers)
	assert.Equal(t, 1, h.repo.validInLineage(tok.SessionID, h.clock.Now()))
}

func TestFacade_Refresh_FingerprintMismatchLogsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.login(t, "user-1", laptop)

	next, err := h.facade.Refresh(ctx, tok.RefreshSecret, phone)
	require.NoError(t, err, "a fingerprint change never blocks the refresh")

	events := h.sink.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, auditdomain.KindFingerprintMismatch, ev.Kind)
	assert.Equal(t, next.SessionID, ev.SessionID)
	assert.Equal(t, "user-1", ev.UserID)
	require.NotNil(t, ev.Previous)
	require.NotNil(t, ev.Current)
	assert.Equal(t, laptop, *ev.Previous)
	assert.Equal(t, phone, *ev.Current)
	assert.True(t, ev.IPChanged)
	assert.True(t, ev.AgentChanged)

	// Same fingerprint on the next refresh: nothing new.
	_, err = h.facade.Refresh(ctx, next.RefreshSecret, phone)
	require.NoError(t, err)
	assert.Len(t, h.sink.Events(), 1)
}

func TestFacade_Refresh_MappedIPv4IsNotAnAnomaly(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "user-1", domain.Fingerprint{UserAgent: "ua", IP: "192.0.2.1"})
	_, err := h.facade.Refresh(context.Background(), tok.RefreshSecret, domain.Fingerprint{UserAgent: "ua", IP: "::ffff:192.0.2.1"})
	require.NoError(t, err)
	assert.Empty(t, h.sink.Events())
}

func TestFacade_Logout_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.login(t, "user-1", laptop)

	require.NoError(t, h.facade.Logout(ctx, tok.RefreshSecret))
	require.NoError(t, h.facade.Logout(ctx, tok.RefreshSecret))
	require.NoError(t, h.facade.Logout(ctx, "unknown"))
	require.NoError(t, h.facade.Logout(ctx, ""))

	s := h.repo.get(tok.SessionID)
	assert.True(t, s.Revoked)
	assert.Equal(t, domain.ReasonLogout, s.RevocationReason)

	_, err := h.facade.Refresh(ctx, tok.RefreshSecret, laptop)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	assert.Equal(t, []auditdomain.EventKind{auditdomain.KindRefreshTokenRevoked}, h.sink.Kinds())
}

func TestFacade_LogoutAll_ThreeDevices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	devices := []domain.Fingerprint{laptop, phone, {UserAgent: "curl/8.0", IP: "192.0.2.55"}}
	var toks []*Tokens
	for _, fp := range devices {
		toks = append(toks, h.login(t, "user-1", fp))
		h.clock.Advance(time.Minute)
	}
	other := h.login(t, "user-2", laptop)

	listed, err := h.facade.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, toks[2].SessionID, listed[0].ID, "newest first")

	n, err := h.facade.LogoutAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, tok := range toks {
		_, err := h.facade.Refresh(ctx, tok.RefreshSecret, laptop)
		assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
		assert.Equal(t, domain.ReasonLogoutAll, h.repo.get(tok.SessionID).RevocationReason)
	}

	n, err = h.facade.LogoutAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	listed, err = h.facade.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = h.facade.Refresh(ctx, other.RefreshSecret, laptop)
	assert.NoError(t, err, "other users are unaffected")
}

func TestFacade_Authenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.login(t, "user-1", laptop)

	p, err := h.facade.Authenticate(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, tok.SessionID, p.SessionID)

	_, err = h.facade.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
}

type failingMinter struct{}

func (failingMinter) Mint(string, string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signer offline")
}

func (failingMinter) Verify(string) (string, string, error) {
	return "", "", security.ErrInvalidToken
}

func TestFacade_Login_MintFailureRevokesSession(t *testing.T) {
	h := newHarness(t)
	facade := NewFacade(h.engine, failingMinter{})

	_, err := facade.Login(context.Background(), "user-1", laptop)
	require.Error(t, err)

	listed, err := h.facade.ListSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}
