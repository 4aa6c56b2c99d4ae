package service

import (
	"context"

	"storyhub/backend/internal/security"
)

// Invalidation strategies. All three are idempotent: invalidating sessions
// that are already gone reports zero affected rows, never an error. Access
// tokens already issued are untouched and expire on their own.

// InvalidateSession removes the single session identified by the plaintext
// refresh token. Used by single-device logout.
func (s *Service) InvalidateSession(ctx context.Context, refreshToken string) (int64, error) {
	return s.repo.DeleteByRefreshTokenHash(ctx, security.HashRefreshToken(refreshToken))
}

// InvalidateAllUserSessions removes every session for the user. Used by
// logout-all-devices and by the "all" password-change policy.
func (s *Service) InvalidateAllUserSessions(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteAllByUser(ctx, userID)
}

// InvalidateOtherSessions removes every session for the user except
// currentSessionID, keeping the caller's device logged in.
func (s *Service) InvalidateOtherSessions(ctx context.Context, userID, currentSessionID string) (int64, error) {
	return s.repo.DeleteOtherByUser(ctx, userID, currentSessionID)
}
