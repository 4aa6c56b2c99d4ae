package domain

import "time"

// Session is one live refresh token bound to a user and a client context.
// RefreshTokenHash is the SHA-256 hash of the opaque refresh token; the
// plaintext exists only in the response of the call that created the session.
// Rows are physically deleted on rotation, logout, and expiry; there is no
// revoked state.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	Fingerprint      string
	IP               string
	UserAgent        string
	DeviceInfo       string
	RememberMe       bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session is past its expiry at the given time.
// An expired row that has not been swept yet is never considered valid.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
