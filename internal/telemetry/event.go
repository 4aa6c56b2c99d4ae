// Package telemetry defines the auth events emitted by the service and the
// best-effort plumbing that ships them to OTel, Kafka, and Loki.
package telemetry

import "time"

// Event types emitted by the auth and session code paths.
const (
	EventSessionCreated     = "session_created"
	EventSessionRotated     = "session_rotated"
	EventSessionInvalidated = "session_invalidated"
	EventSessionReaped      = "session_reaped"
	EventLoginDenied        = "login_denied"
	EventRefreshDenied      = "refresh_denied"
)

// Outcomes attached to events that can fail.
const (
	OutcomeOK                  = "ok"
	OutcomeInvalidCredentials  = "invalid_credentials"
	OutcomeInvalidToken        = "invalid_token"
	OutcomeExpired             = "expired"
	OutcomeFingerprintMismatch = "fingerprint_mismatch"
	OutcomeAccountInactive     = "account_inactive"
	OutcomeStoreUnavailable    = "store_unavailable"
)

// Event is a single telemetry event. Token material is never carried here.
type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Count     int64     `json:"count,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
