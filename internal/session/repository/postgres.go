package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-session-service/internal/session/domain"
)

const (
	uniqueViolation = "23505"
	// secretHashConstraint is the unique constraint on sessions.secret_hash.
	secretHashConstraint = "sessions_secret_hash_key"
)

const sessionColumns = `id, user_id, lineage_id, secret_hash, issued_at, expires_at, absolute_expiry,
	revoked, revoked_at, revocation_reason, replaced_by, user_agent, ip_address`

// PostgresRepository implements Repository on a pgx pool. Every call runs under timeout.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	hasher  SecretHasher
	timeout time.Duration
}

// NewPostgresRepository returns a session repository backed by pool. hasher must be the same
// one the secret generator uses, or lookups will never match.
func NewPostgresRepository(pool *pgxpool.Pool, hasher SecretHasher, timeout time.Duration) *PostgresRepository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresRepository{pool: pool, hasher: hasher, timeout: timeout}
}

// Insert persists s. A digest collision yields domain.ErrDuplicateSecretHash and leaves the existing row untouched.
func (r *PostgresRepository) Insert(ctx context.Context, s *domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := insertSession(ctx, r.pool, s); err != nil {
		return storeError("insert", err)
	}
	return nil
}

// FindValidBySecret returns the valid session for secret, or nil if absent, revoked or expired.
func (r *PostgresRepository) FindValidBySecret(ctx context.Context, secret string, now time.Time) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE secret_hash = $1 AND revoked = false AND expires_at > $2
	`, r.hasher.Hash(secret), now)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("find valid by secret", err)
	}
	return s, nil
}

// LookupBySecret returns the session for secret in any state, or nil.
func (r *PostgresRepository) LookupBySecret(ctx context.Context, secret string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE secret_hash = $1`, r.hasher.Hash(secret))
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("lookup by secret", err)
	}
	return s, nil
}

// FindAllValidByUser returns valid sessions for userID, newest first.
func (r *PostgresRepository) FindAllValidByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND revoked = false AND expires_at > $2
		ORDER BY issued_at DESC
	`, userID, now)
	if err != nil {
		return nil, storeError("find all valid by user", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storeError("find all valid by user", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("find all valid by user", err)
	}
	return out, nil
}

// Revoke marks id revoked. Already-revoked or unknown ids are a no-op.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, reason domain.RevocationReason, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked = true, revoked_at = COALESCE(revoked_at, $2), revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1 AND revoked = false
	`, id, now, string(reason))
	if err != nil {
		return storeError("revoke", err)
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked session of userID, expired ones included, and
// returns the number of rows changed.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevocationReason, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked = true, revoked_at = COALESCE(revoked_at, $2), revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1 AND revoked = false
	`, userID, now, string(reason))
	if err != nil {
		return 0, storeError("revoke all for user", err)
	}
	return tag.RowsAffected(), nil
}

// Rotate revokes oldID and inserts next in one transaction. The conditional UPDATE is the
// compare-and-swap: of two concurrent rotations of the same session only one sees a row to
// update, the other gets domain.ErrRotationConflict and rolls back.
func (r *PostgresRepository) Rotate(ctx context.Context, oldID string, next *domain.Session, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeError("rotate: begin", err)
	}
	// No-op after a successful Commit. Uses a context that outlives ctx so a cancelled request still rolls back.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	tag, err := tx.Exec(ctx, `
		UPDATE sessions
		SET revoked = true, revoked_at = $2, revocation_reason = $3, replaced_by = $4
		WHERE id = $1 AND revoked = false AND expires_at > $2
	`, oldID, now, string(domain.ReasonRotation), next.ID)
	if err != nil {
		return storeError("rotate: revoke predecessor", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRotationConflict
	}
	if err := insertSession(ctx, tx, next); err != nil {
		return storeError("rotate: insert successor", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeError("rotate: commit", err)
	}
	return nil
}

// PruneBefore deletes rows that expired before cutoff and, if revoked, were revoked before cutoff.
func (r *PostgresRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1 AND (revoked_at IS NULL OR revoked_at < $1)
	`, cutoff)
	if err != nil {
		return 0, storeError("prune", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks pool connectivity under the store timeout.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSession(ctx context.Context, db execer, s *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions (
			id, user_id, lineage_id, secret_hash, issued_at, expires_at, absolute_expiry,
			revoked, revoked_at, revocation_reason, replaced_by, user_agent, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL, NULL, NULL, $8, $9)
	`, s.ID, s.UserID, s.LineageID, s.SecretHash, s.IssuedAt, s.ExpiresAt, s.AbsoluteExpiry,
		s.Fingerprint.UserAgent, s.Fingerprint.IP)
	return err
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s      domain.Session
		reason *string
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.LineageID,
		&s.SecretHash,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.AbsoluteExpiry,
		&s.Revoked,
		&s.RevokedAt,
		&reason,
		&s.ReplacedBy,
		&s.Fingerprint.UserAgent,
		&s.Fingerprint.IP,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		s.RevocationReason = domain.RevocationReason(*reason)
	}
	s.IssuedAt = s.IssuedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.AbsoluteExpiry = s.AbsoluteExpiry.UTC()
	return &s, nil
}

// storeError maps driver errors onto the domain taxonomy: digest collisions become
// ErrDuplicateSecretHash, timeouts and connection failures become ErrStoreUnavailable.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation && (pgErr.ConstraintName == secretHashConstraint || strings.Contains(pgErr.ConstraintName, "secret_hash")) {
			return domain.ErrDuplicateSecretHash
		}
		if transientPgCode(pgErr.Code) {
			return fmt.Errorf("session store: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("session store: %s: %w", op, err)
	}
	if isTransient(err) {
		return fmt.Errorf("session store: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("session store: %s: %w", op, err)
}

// transientPgCode covers connection exceptions (08), insufficient resources (53),
// operator intervention (57, e.g. admin shutdown or statement cancel) and serialization failures (40001).
func transientPgCode(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57"):
		return true
	case code == "40001", code == "40P01":
		return true
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
