package service

import (
	"time"

	"storyhub/backend/internal/security"
	"storyhub/backend/internal/session/domain"
)

// Verify validates a session against expiry and the presented fingerprint.
// Checks run in order: existence, expiry, fingerprint. The returned sentinel
// names the failed check for server-side logging only; callers must surface
// every failure as the same unauthorized outcome.
func (s *Service) Verify(sess *domain.Session, fingerprint string, now time.Time) error {
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.Expired(now) {
		return ErrSessionExpired
	}
	if !security.FingerprintEqual(fingerprint, sess.Fingerprint) {
		return ErrFingerprintMismatch
	}
	return nil
}
