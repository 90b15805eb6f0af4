// Package service implements password registration and credential checks. Sessions are
// issued by the session facade once Authenticate succeeds.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/identity/domain"
	"auth-session-service/internal/identity/repository"
)

// Sentinel errors for auth service; handler maps them to HTTP status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrMissingFields          = errors.New("email and password are required")
)

// PasswordHasher hashes and checks passwords. security.Hasher implements it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	CompareDummy(password string)
}

// AuthService implements password-only register and credential verification.
type AuthService struct {
	users  repository.Repository
	hasher PasswordHasher
	now    func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(users repository.Repository, hasher PasswordHasher) *AuthService {
	return &AuthService{users: users, hasher: hasher, now: time.Now}
}

// Register creates a user with the given email and password and returns its id.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", ErrMissingFields
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hashed,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", ErrEmailAlreadyRegistered
		}
		return "", err
	}
	return user.ID, nil
}

// Authenticate returns the user id for a matching email and password. Unknown email and wrong
// password both yield ErrInvalidCredentials after the same amount of bcrypt work.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		s.hasher.CompareDummy(password)
		return "", ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return user.ID, nil
}
