// Package repository persists users.
package repository

import (
	"context"
	"errors"

	"auth-session-service/internal/identity/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("duplicate email")

// Repository defines persistence for users. Lookups that find nothing return (nil, nil).
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}
