package service

import (
	"context"
	"fmt"
	"time"

	"auth-session-service/internal/session/domain"
)

// AccessTokenIssuer mints and verifies short-lived access tokens. security.TokenProvider implements it.
type AccessTokenIssuer interface {
	Mint(userID, sessionID string) (token string, expiresAt time.Time, err error)
	Verify(token string) (userID, sessionID string, err error)
}

// Tokens is what Login and Refresh hand back to the client.
type Tokens struct {
	SessionID        string
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// Principal is the identity carried by a verified access token.
type Principal struct {
	UserID    string
	SessionID string
}

// Facade is the session API the transport layer uses.
type Facade struct {
	engine *Engine
	tokens AccessTokenIssuer
}

// NewFacade returns a Facade over engine and tokens.
func NewFacade(engine *Engine, tokens AccessTokenIssuer) *Facade {
	return &Facade{engine: engine, tokens: tokens}
}

// Login issues a session for an already authenticated user.
func (f *Facade) Login(ctx context.Context, userID string, fp domain.Fingerprint) (*Tokens, error) {
	issued, err := f.engine.Issue(ctx, userID, fp)
	if err != nil {
		return nil, err
	}
	return f.tokensFor(ctx, issued)
}

// Refresh rotates the refresh secret. Any unusable secret yields domain.ErrInvalidRefreshToken.
func (f *Facade) Refresh(ctx context.Context, secret string, fp domain.Fingerprint) (*Tokens, error) {
	issued, err := f.engine.Rotate(ctx, secret, fp)
	if err != nil {
		return nil, err
	}
	return f.tokensFor(ctx, issued)
}

// Logout revokes the session holding secret. Returns nil unless the store is unavailable.
func (f *Facade) Logout(ctx context.Context, secret string) error {
	return f.engine.Revoke(ctx, secret)
}

// LogoutAll revokes every session of userID and returns the number revoked.
func (f *Facade) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return f.engine.RevokeAll(ctx, userID)
}

// ListSessions returns the user's valid sessions.
func (f *Facade) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	return f.engine.List(ctx, userID)
}

// Authenticate verifies an access token.
func (f *Facade) Authenticate(_ context.Context, accessToken string) (*Principal, error) {
	userID, sessionID, err := f.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: userID, SessionID: sessionID}, nil
}

// tokensFor mints the access token for a stored session. On failure the session is revoked,
// since its secret never reaches the client.
func (f *Facade) tokensFor(ctx context.Context, issued *Issued) (*Tokens, error) {
	s := issued.Session
	access, accessExp, err := f.tokens.Mint(s.UserID, s.ID)
	if err != nil {
		f.engine.discard(ctx, s)
		return nil, fmt.Errorf("session: mint access token: %w", err)
	}
	return &Tokens{
		SessionID:        s.ID,
		UserID:           s.UserID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshSecret:    issued.Secret,
		RefreshExpiresAt: s.ExpiresAt,
	}, nil
}
