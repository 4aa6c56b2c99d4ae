package service

import "errors"

// Sentinel errors for the auth service; the HTTP layer maps them to status codes.
// The four security outcomes (invalid token, expired session, fingerprint
// mismatch, inactive account) are collapsed before they reach the client:
// handlers see only ErrInvalidRefreshToken or ErrAccountInactive, and the
// distinct cause is kept in server-side logs and audit records.
var (
	ErrValidation             = errors.New("validation failed")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrAccountInactive        = errors.New("account is inactive")
	ErrRateLimited            = errors.New("too many requests")
)
