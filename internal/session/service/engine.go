// Package service implements the refresh-token rotation engine and the session facade the
// transport layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditdomain "auth-session-service/internal/audit/domain"
	"auth-session-service/internal/session/anomaly"
	"auth-session-service/internal/session/domain"
	"auth-session-service/internal/session/repository"
)

const (
	// maxSecretAttempts bounds regeneration after a digest collision.
	maxSecretAttempts = 3
	// maxSecretLength rejects oversized input before it reaches the store. Real secrets are 43 chars.
	maxSecretLength = 256
)

// SecretSource mints refresh secrets. security.SecretGenerator implements it.
type SecretSource interface {
	Generate() (secret, secretHash string, err error)
}

// EventSink receives security events. audit.SecurityLogger implements it. Log must not block.
type EventSink interface {
	Log(ctx context.Context, event auditdomain.SecurityEvent)
}

type nopSink struct{}

func (nopSink) Log(context.Context, auditdomain.SecurityEvent) {}

// Issued is a freshly stored session and the raw secret that authenticates it.
// The secret exists only here; the store keeps its digest.
type Issued struct {
	Session *domain.Session
	Secret  string
}

// Engine applies the session state machine on top of a Repository.
type Engine struct {
	cfg     domain.Config
	repo    repository.Repository
	secrets SecretSource
	events  EventSink
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides uuid.NewString for session ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithMetrics sets the counters the engine records to.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the operational logger. Security events go to the EventSink, not here.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine. cfg must already be validated; events may be nil.
func NewEngine(cfg domain.Config, repo repository.Repository, secrets SecretSource, events EventSink, opts ...Option) *Engine {
	if events == nil {
		events = nopSink{}
	}
	e := &Engine{
		cfg:     cfg,
		repo:    repo,
		secrets: secrets,
		events:  events,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "session"))
	return e
}

// Issue starts a new lineage for userID.
func (e *Engine) Issue(ctx context.Context, userID string, fp domain.Fingerprint) (*Issued, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	now := e.now().UTC()
	for attempt := 1; attempt <= maxSecretAttempts; attempt++ {
		secret, hash, err := e.secrets.Generate()
		if err != nil {
			return nil, fmt.Errorf("session: issue: %w", err)
		}
		s := domain.NewSession(e.newID(), userID, hash, fp, now, e.cfg)
		err = e.repo.Insert(ctx, s)
		if err == nil {
			e.metrics.recordIssued(ctx)
			e.logger.DebugContext(ctx, "session issued",
				slog.String("session_id", s.ID),
				slog.String("user_id", s.UserID),
				slog.Time("expires_at", s.ExpiresAt),
			)
			return &Issued{Session: s, Secret: secret}, nil
		}
		if !errors.Is(err, domain.ErrDuplicateSecretHash) {
			return nil, fmt.Errorf("session: issue: %w", err)
		}
		e.logger.WarnContext(ctx, "secret digest collision, regenerating", slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("session: issue: %w", domain.ErrDuplicateSecretHash)
}

// Rotate exchanges a valid secret for a new one. The old session is revoked and replaced in
// one store transaction; of concurrent calls with the same secret exactly one succeeds.
// Every rejection is domain.ErrInvalidRefreshToken except store and entropy failures.
func (e *Engine) Rotate(ctx context.Context, secret string, fp domain.Fingerprint) (*Issued, error) {
	if secret == "" || len(secret) > maxSecretLength {
		e.metrics.recordRefreshFailed(ctx, failureInvalid)
		return nil, domain.ErrInvalidRefreshToken
	}
	now := e.now().UTC()

	current, err := e.repo.FindValidBySecret(ctx, secret, now)
	if err != nil {
		e.metrics.recordRefreshFailed(ctx, failureStore)
		return nil, fmt.Errorf("session: refresh: %w", err)
	}
	if current == nil {
		e.metrics.recordRefreshFailed(ctx, failureInvalid)
		e.reportInvalid(ctx, secret, fp, now)
		return nil, domain.ErrInvalidRefreshToken
	}

	next := domain.NextExpiry(now, e.cfg.SlideWindow, current.AbsoluteExpiry)
	if !next.After(now) {
		return nil, e.capLifetime(ctx, current, fp, now)
	}

	for attempt := 1; ; attempt++ {
		newSecret, hash, err := e.secrets.Generate()
		if err != nil {
			e.metrics.recordRefreshFailed(ctx, failureEntropy)
			return nil, fmt.Errorf("session: refresh: %w", err)
		}
		successor := current.Successor(e.newID(), hash, fp, now, next)
		err = e.repo.Rotate(ctx, current.ID, successor, now)
		switch {
		case err == nil:
			e.metrics.recordRotated(ctx)
			e.logger.DebugContext(ctx, "session rotated",
				slog.String("session_id", successor.ID),
				slog.String("replaces", current.ID),
				slog.Time("expires_at", successor.ExpiresAt),
			)
			e.checkFingerprint(ctx, current, successor, now)
			return &Issued{Session: successor, Secret: newSecret}, nil
		case errors.Is(err, domain.ErrRotationConflict):
			// Another refresh with the same secret committed first.
			e.metrics.recordRefreshFailed(ctx, failureConflict)
			e.logger.InfoContext(ctx, "concurrent refresh lost the race", slog.String("session_id", current.ID))
			return nil, domain.ErrInvalidRefreshToken
		case errors.Is(err, domain.ErrDuplicateSecretHash) && attempt < maxSecretAttempts:
			e.logger.WarnContext(ctx, "secret digest collision, regenerating", slog.Int("attempt", attempt))
		case errors.Is(err, domain.ErrDuplicateSecretHash):
			e.metrics.recordRefreshFailed(ctx, failureCollision)
			return nil, fmt.Errorf("session: refresh: %w", err)
		default:
			e.metrics.recordRefreshFailed(ctx, failureStore)
			return nil, fmt.Errorf("session: refresh: %w", err)
		}
	}
}

// capLifetime revokes a session whose lineage reached its absolute expiry.
func (e *Engine) capLifetime(ctx context.Context, s *domain.Session, fp domain.Fingerprint, now time.Time) error {
	if err := e.repo.Revoke(ctx, s.ID, domain.ReasonLifetimeCap, now); err != nil {
		e.metrics.recordRefreshFailed(ctx, failureStore)
		return fmt.Errorf("session: refresh: %w", err)
	}
	e.metrics.recordRefreshFailed(ctx, failureLifetimeCap)
	prev := s.Fingerprint
	e.events.Log(ctx, auditdomain.SecurityEvent{
		Kind:      auditdomain.KindSessionLifetimeCap,
		SessionID: s.ID,
		UserID:    s.UserID,
		Previous:  &prev,
		Current:   &fp,
		At:        now,
	})
	return domain.ErrInvalidRefreshToken
}

// reportInvalid classifies a rejected secret for the security log. Lookup failures only reach
// the operational log; the caller's answer is the same either way.
func (e *Engine) reportInvalid(ctx context.Context, secret string, fp domain.Fingerprint, now time.Time) {
	rec, err := e.repo.LookupBySecret(ctx, secret)
	if err != nil {
		e.logger.WarnContext(ctx, "replay lookup failed", slog.Any("error", err))
		return
	}
	if rec == nil {
		e.logger.DebugContext(ctx, "unknown refresh token presented")
		return
	}
	var kind auditdomain.EventKind
	switch rec.StateAt(now) {
	case domain.StateRotated:
		kind = auditdomain.KindRefreshTokenReuse
	case domain.StateRevoked:
		kind = auditdomain.KindRefreshTokenRevoked
	case domain.StateExpired:
		kind = auditdomain.KindRefreshTokenExpired
	default:
		return
	}
	prev := rec.Fingerprint
	e.events.Log(ctx, auditdomain.SecurityEvent{
		Kind:      kind,
		SessionID: rec.ID,
		UserID:    rec.UserID,
		Previous:  &prev,
		Current:   &fp,
		At:        now,
	})
}

func (e *Engine) checkFingerprint(ctx context.Context, prev, next *domain.Session, now time.Time) {
	res := anomaly.Compare(prev.Fingerprint, next.Fingerprint)
	if res.Match {
		return
	}
	e.metrics.recordAnomaly(ctx)
	before, after := prev.Fingerprint, next.Fingerprint
	e.events.Log(ctx, auditdomain.SecurityEvent{
		Kind:         auditdomain.KindFingerprintMismatch,
		SessionID:    next.ID,
		UserID:       next.UserID,
		Previous:     &before,
		Current:      &after,
		IPChanged:    res.IPChanged,
		AgentChanged: res.AgentChanged,
		At:           now,
	})
}

// Revoke ends the session holding secret. Unknown, expired or already revoked secrets are not an error.
func (e *Engine) Revoke(ctx context.Context, secret string) error {
	if secret == "" || len(secret) > maxSecretLength {
		return nil
	}
	now := e.now().UTC()
	s, err := e.repo.FindValidBySecret(ctx, secret, now)
	if err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	if s == nil {
		return nil
	}
	if err := e.repo.Revoke(ctx, s.ID, domain.ReasonLogout, now); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	e.metrics.recordRevoked(ctx, 1)
	e.logger.DebugContext(ctx, "session revoked", slog.String("session_id", s.ID))
	return nil
}

// RevokeAll ends every session of userID and returns how many were still active.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.ErrInvalidUserID
	}
	n, err := e.repo.RevokeAllForUser(ctx, userID, domain.ReasonLogoutAll, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session: logout all: %w", err)
	}
	e.metrics.recordRevoked(ctx, n)
	e.logger.InfoContext(ctx, "all sessions revoked", slog.String("user_id", userID), slog.Int64("count", n))
	return n, nil
}

// List returns the user's valid sessions, newest first.
func (e *Engine) List(ctx context.Context, userID string) ([]*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	sessions, err := e.repo.FindAllValidByUser(ctx, userID, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return sessions, nil
}

// discard revokes a session the caller could not hand out. Best effort.
func (e *Engine) discard(ctx context.Context, s *domain.Session) {
	if err := e.repo.Revoke(context.WithoutCancel(ctx), s.ID, domain.ReasonLogout, e.now().UTC()); err != nil {
		e.logger.WarnContext(ctx, "failed to revoke undelivered session",
			slog.String("session_id", s.ID), slog.Any("error", err))
	}
}
