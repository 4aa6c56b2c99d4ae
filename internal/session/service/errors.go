package service

import "errors"

// Sentinel errors for session verification and invalidation. These carry the
// specific failure for server-side logs and audit; the HTTP layer collapses
// all of them to a generic unauthorized response so callers cannot probe
// which check failed.
var (
	// ErrSessionNotFound is returned when a refresh token does not resolve to a
	// live session (already rotated, logged out, or never existed).
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrFingerprintMismatch is returned when the presented fingerprint differs
	// from the one the session was created with.
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
)
