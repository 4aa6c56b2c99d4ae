// Package service implements the session lifecycle: creation, verification,
// refresh-token consumption, and invalidation.
//
// All session state lives in the store; there is no in-process cache or lock.
// Correctness under concurrent refresh and logout calls rests entirely on the
// store's single-statement delete semantics.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storyhub/backend/internal/security"
	"storyhub/backend/internal/session/domain"
	"storyhub/backend/internal/session/repository"
)

// Config holds session lifetime and token entropy settings.
type Config struct {
	// RefreshTTL is the session lifetime for regular logins.
	RefreshTTL time.Duration
	// RefreshTTLRememberMe is the extended lifetime for remember-me logins.
	RefreshTTLRememberMe time.Duration
	// RefreshTokenBytes is the number of random bytes in an opaque refresh token.
	RefreshTokenBytes int
}

// Service implements session creation, verification, and invalidation on top
// of the session repository.
type Service struct {
	repo repository.Repository
	cfg  Config
}

// NewService returns a Service with the given repository and configuration.
func NewService(repo repository.Repository, cfg Config) *Service {
	if cfg.RefreshTokenBytes <= 0 {
		cfg.RefreshTokenBytes = 32
	}
	return &Service{repo: repo, cfg: cfg}
}

// NewSession is the input to Create. Unrecognized client attributes are
// rejected at the HTTP boundary; only these fields are ever bound to a session.
type NewSession struct {
	UserID      string
	IP          string
	UserAgent   string
	Fingerprint string
	DeviceInfo  string
	RememberMe  bool
}

// Created is the result of Create. RefreshToken is the plaintext refresh
// token; this is the only place it is ever available.
type Created struct {
	Session      *domain.Session
	RefreshToken string
}

// Create generates a refresh token, computes the session expiry from the
// configured lifetime (extended for remember-me), and persists the session.
// The only side effect is the single store write.
func (s *Service) Create(ctx context.Context, now time.Time, in NewSession) (*Created, error) {
	plain, hash, err := security.NewRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return nil, err
	}

	ttl := s.cfg.RefreshTTL
	if in.RememberMe {
		ttl = s.cfg.RefreshTTLRememberMe
	}

	sess := &domain.Session{
		ID:               uuid.New().String(),
		UserID:           in.UserID,
		RefreshTokenHash: hash,
		Fingerprint:      in.Fingerprint,
		IP:               in.IP,
		UserAgent:        in.UserAgent,
		DeviceInfo:       in.DeviceInfo,
		RememberMe:       in.RememberMe,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &Created{Session: sess, RefreshToken: plain}, nil
}

// Consume removes the session for the given plaintext refresh token and
// returns it. Returns ErrSessionNotFound when the token does not resolve to a
// live session. The delete happens before any validation, so a presented
// token is burned exactly once no matter what happens downstream.
func (s *Service) Consume(ctx context.Context, refreshToken string) (*domain.Session, error) {
	sess, err := s.repo.ConsumeByRefreshTokenHash(ctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Lookup returns the session for the given plaintext refresh token without
// removing it, or nil if the token does not resolve to a live session.
// Used by logout paths that need the owning user before invalidating.
func (s *Service) Lookup(ctx context.Context, refreshToken string) (*domain.Session, error) {
	return s.repo.GetByRefreshTokenHash(ctx, security.HashRefreshToken(refreshToken))
}

// ListForUser returns the user's live sessions, newest first. Sessions past
// their expiry are excluded even when the sweep has not removed them yet.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListByUser(ctx, userID, time.Now().UTC())
}

// CountRecentLogouts counts the user's logout events inside the window.
// Best-effort: callers log errors and continue.
func (s *Service) CountRecentLogouts(ctx context.Context, userID string, window time.Duration) (int64, error) {
	return s.repo.CountRecentLogouts(ctx, userID, window)
}

// ReapExpired deletes sessions whose expiry is at or before now and returns the count.
func (s *Service) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}
