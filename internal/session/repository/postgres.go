package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"storyhub/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, refresh_token_hash, fingerprint, ip, user_agent, device_info, remember_me, created_at, expires_at`

// Create persists the session to the database. The session must have ID set.
// Returns ErrRefreshTokenConflict on a refresh token hash collision.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, fingerprint, ip, user_agent, device_info, remember_me, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.Fingerprint, s.IP, s.UserAgent, s.DeviceInfo, s.RememberMe, s.CreatedAt, s.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrRefreshTokenConflict
	}
	return err
}

// GetByRefreshTokenHash returns the session for the given token hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	return scanSession(row)
}

// ConsumeByRefreshTokenHash atomically deletes and returns the session with the
// given token hash. Concurrent callers presenting the same token race on the
// row delete; exactly one gets the session, the rest get (nil, nil).
func (r *PostgresRepository) ConsumeByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM sessions WHERE refresh_token_hash = $1
		RETURNING `+sessionColumns, hash)
	return scanSession(row)
}

// DeleteByRefreshTokenHash deletes the session with the given token hash.
// Returns the number of rows deleted (0 or 1); deleting an absent session is not an error.
func (r *PostgresRepository) DeleteByRefreshTokenHash(ctx context.Context, hash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, hash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllByUser deletes every session for the given user and returns the count.
func (r *PostgresRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOtherByUser deletes every session of the user except keepSessionID and returns the count.
func (r *PostgresRepository) DeleteOtherByUser(ctx context.Context, userID, keepSessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1 AND id <> $2`, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes sessions whose expiry is at or before now and returns the count.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByUser returns the user's sessions that are still live at now, newest
// first. Expired rows the sweep has not removed yet are skipped.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND expires_at > $2 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.Fingerprint, &s.IP, &s.UserAgent, &s.DeviceInfo, &s.RememberMe, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// CountRecentLogouts counts logout audit events for the user inside the window.
func (r *PostgresRepository) CountRecentLogouts(ctx context.Context, userID string, window time.Duration) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE user_id = $1 AND action IN ('auth.logout', 'auth.logout_all') AND created_at > $2`,
		userID, time.Now().UTC().Add(-window),
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.Fingerprint, &s.IP, &s.UserAgent, &s.DeviceInfo, &s.RememberMe, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
