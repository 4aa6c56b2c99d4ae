package repository

import (
	"context"
	"errors"
	"time"

	"storyhub/backend/internal/session/domain"
)

// ErrRefreshTokenConflict is returned by Create when the refresh token hash
// collides with an existing row. With 32+ bytes of token entropy this should
// never happen; callers treat it as an internal error.
var ErrRefreshTokenConflict = errors.New("refresh token already exists")

// Repository defines persistence for sessions. The database is the single
// source of truth for session liveness; no cache sits in front of it.
//
// Get/Consume methods return (nil, nil) for missing rows; an error means a
// database failure.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	// ConsumeByRefreshTokenHash deletes the session with the given hash and
	// returns it in one statement. At most one caller can consume a given
	// hash; everyone else sees (nil, nil). This is the single-use guarantee
	// of refresh rotation.
	ConsumeByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	DeleteByRefreshTokenHash(ctx context.Context, hash string) (int64, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	// DeleteOtherByUser deletes every session of the user except keepSessionID.
	DeleteOtherByUser(ctx context.Context, userID, keepSessionID string) (int64, error)
	// DeleteExpired removes sessions whose expiry is at or before now. Used by the sweep worker.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// ListByUser returns the user's sessions that are still live at now.
	// Expired rows awaiting the sweep are never listed.
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	// CountRecentLogouts counts logout audit events for the user inside the
	// window. Best-effort: callers must not fail their primary operation on error.
	CountRecentLogouts(ctx context.Context, userID string, window time.Duration) (int64, error)
}
