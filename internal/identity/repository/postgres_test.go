package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-session-service/internal/db"
	"auth-session-service/internal/db/migrate"
	"auth-session-service/internal/identity/domain"
)

func TestPostgresRepository_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}
	require.NoError(t, migrate.Run(dsn, "up"))
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	r := NewPostgresRepository(pool)

	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         "Alice",
		Email:        uuid.NewString() + "@example.test",
		PasswordHash: "$2a$04$hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, u.ID) })
	require.NoError(t, r.Create(ctx, u))

	got, err := r.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *u, *got)

	got, err = r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.Email, got.Email)

	dup := *u
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, r.Create(ctx, &dup), ErrDuplicateEmail)

	got, err = r.GetByEmail(ctx, "nobody@example.test")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreate_RejectsInvalidUser(t *testing.T) {
	r := NewPostgresRepository(nil)
	assert.Error(t, r.Create(context.Background(), &domain.User{ID: "u1"}))
}
