package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	auditdomain "auth-session-service/internal/audit/domain"
	"auth-session-service/internal/logger"
	"auth-session-service/internal/security"
	"auth-session-service/internal/session/domain"
)

const day = 24 * time.Hour

var (
	t0      = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	laptop  = domain.Fingerprint{UserAgent: "Mozilla/5.0 (Macintosh)", IP: "203.0.113.7"}
	phone   = domain.Fingerprint{UserAgent: "Mozilla/5.0 (iPhone)", IP: "198.51.100.20"}
	testCfg = domain.Config{SlideWindow: 7 * day, MaxLifetime: 30 * day}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auditdomain.SecurityEvent
}

func (s *recordingSink) Log(_ context.Context, ev auditdomain.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Events() []auditdomain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auditdomain.SecurityEvent(nil), s.events...)
}

func (s *recordingSink) Kinds() []auditdomain.EventKind {
	var out []auditdomain.EventKind
	for _, ev := range s.Events() {
		out = append(out, ev.Kind)
	}
	return out
}

type secretFunc func() (string, string, error)

func (f secretFunc) Generate() (string, string, error) { return f() }

type harness struct {
	repo   *memRepo
	clock  *fakeClock
	sink   *recordingSink
	engine *Engine
	facade *Facade
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		repo:  newMemRepo(),
		clock: &fakeClock{now: t0},
		sink:  &recordingSink{},
	}
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	opts = append([]Option{WithClock(h.clock.Now), WithLogger(logger.Discard())}, opts...)
	h.engine = NewEngine(testCfg, h.repo, security.NewSecretGenerator(nil), h.sink, opts...)
	h.facade = NewFacade(h.engine, tokens)
	return h
}

func (h *harness) login(t *testing.T, userID string, fp domain.Fingerprint) *Tokens {
	t.Helper()
	tok, err := h.facade.Login(context.Background(), userID, fp)
	require.NoError(t, err)
	return tok
}
