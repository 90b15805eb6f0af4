package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"auth-session-service/internal/security"
	"auth-session-service/internal/session/domain"
	"auth-session-service/internal/session/repository"
)

// memRepo is an in-memory Repository with the same guarantees as the Postgres one: unique
// digests, conditional rotate and at most one valid session per lineage.
type memRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.Session
	byHash map[string]string

	// dupNext makes the next n writes fail with ErrDuplicateSecretHash.
	dupNext int
	// findErr is returned by FindValidBySecret when set.
	findErr error
}

var _ repository.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*domain.Session{}, byHash: map[string]string{}}
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	return &c
}

func (r *memRepo) put(s *domain.Session) error {
	if r.dupNext > 0 {
		r.dupNext--
		return domain.ErrDuplicateSecretHash
	}
	if _, ok := r.byHash[s.SecretHash]; ok {
		return domain.ErrDuplicateSecretHash
	}
	r.byID[s.ID] = clone(s)
	r.byHash[s.SecretHash] = s.ID
	return nil
}

func (r *memRepo) Insert(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(s)
}

func (r *memRepo) lookup(secret string) *domain.Session {
	id, ok := r.byHash[security.HashSecret(secret, nil)]
	if !ok {
		return nil
	}
	return r.byID[id]
}

func (r *memRepo) FindValidBySecret(_ context.Context, secret string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	s := r.lookup(secret)
	if s == nil || !s.ValidAt(now) {
		return nil, nil
	}
	return clone(s), nil
}

func (r *memRepo) LookupBySecret(_ context.Context, secret string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(secret)
	if s == nil {
		return nil, nil
	}
	return clone(s), nil
}

func (r *memRepo) FindAllValidByUser(_ context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.ValidAt(now) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (r *memRepo) revoke(s *domain.Session, reason domain.RevocationReason, now time.Time) bool {
	if s.Revoked {
		return false
	}
	at := now
	s.Revoked = true
	s.RevokedAt = &at
	s.RevocationReason = reason
	return true
}

func (r *memRepo) Revoke(_ context.Context, id string, reason domain.RevocationReason, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		r.revoke(s, reason, now)
	}
	return nil
}

func (r *memRepo) RevokeAllForUser(_ context.Context, userID string, reason domain.RevocationReason, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.UserID == userID && r.revoke(s, reason, now) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) Rotate(_ context.Context, oldID string, next *domain.Session, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[oldID]
	if !ok || !old.ValidAt(now) {
		return domain.ErrRotationConflict
	}
	if err := r.put(next); err != nil {
		return err
	}
	r.revoke(old, domain.ReasonRotation, now)
	id := next.ID
	old.ReplacedBy = &id
	return nil
}

func (r *memRepo) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.ExpiresAt.Before(cutoff) && (s.RevokedAt == nil || s.RevokedAt.Before(cutoff)) {
			delete(r.byHash, s.SecretHash)
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// validInLineage counts valid sessions per lineage.
func (r *memRepo) validInLineage(lineageID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.byID {
		if s.LineageID == lineageID && s.ValidAt(now) {
			n++
		}
	}
	return n
}

func (r *memRepo) get(id string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		return clone(s)
	}
	return nil
}
