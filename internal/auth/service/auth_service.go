// Package service implements the auth orchestration layer: registration,
// login, refresh rotation, logout, and password changes. It owns no state of
// its own; sessions live in the session store and users in the user store.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storyhub/backend/internal/audit"
	"storyhub/backend/internal/security"
	sessionsvc "storyhub/backend/internal/session/service"
	"storyhub/backend/internal/telemetry"
	userdomain "storyhub/backend/internal/user/domain"
)

// AuthResult holds the outcome of Register (user_id only), Login, or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	UserID       string
	ExpiresAt    time.Time
}

// ClientMeta carries the request attributes bound to a session. Unrecognized
// fields are rejected at the HTTP boundary; these are the only ones accepted.
type ClientMeta struct {
	Fingerprint string
	IP          string
	UserAgent   string
	DeviceInfo  string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
}

// Config holds auth service policy settings.
type Config struct {
	// PasswordChangePolicy selects which sessions a password change
	// invalidates: "all", or "others" to keep the current device.
	PasswordChangePolicy string
	// LogoutRateWindow and LogoutRateMax throttle repeated logouts per user.
	// Best-effort: failures counting never block the logout itself.
	LogoutRateWindow time.Duration
	LogoutRateMax    int64
}

// AuthService orchestrates the user store, session service, and token codec.
type AuthService struct {
	users    UserRepo
	sessions *sessionsvc.Service
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	auditor  audit.AuditLogger
	emitter  telemetry.EventEmitter
	cfg      Config
	log      *logrus.Logger
}

// NewAuthService returns an AuthService with the given dependencies.
// auditor and emitter may be nil; audit logging and telemetry are then skipped.
func NewAuthService(
	users UserRepo,
	sessions *sessionsvc.Service,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	auditor audit.AuditLogger,
	emitter telemetry.EventEmitter,
	cfg Config,
	log *logrus.Logger,
) *AuthService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		auditor:  auditor,
		emitter:  emitter,
		cfg:      cfg,
		log:      log,
	}
}

// Register creates a user with the given email and password.
// Returns AuthResult with UserID only; the caller must Login to get tokens.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hashed,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.audit(ctx, user.ID, audit.ActionRegister, "", "")
	return &AuthResult{UserID: user.ID}, nil
}

// Login authenticates with email/password, creates a session bound to the
// client attributes, and returns tokens.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientMeta, rememberMe bool) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() || user.PasswordHash == "" {
		s.audit(ctx, "", audit.ActionLoginDenied, "", "unknown or inactive account")
		s.emit(ctx, &telemetry.Event{
			Type: telemetry.EventLoginDenied, Outcome: telemetry.OutcomeInvalidCredentials,
			IP: client.IP, UserAgent: client.UserAgent, Source: "login",
		})
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.audit(ctx, user.ID, audit.ActionLoginDenied, "", "password mismatch")
		s.emit(ctx, &telemetry.Event{
			Type: telemetry.EventLoginDenied, Outcome: telemetry.OutcomeInvalidCredentials,
			UserID: user.ID, IP: client.IP, UserAgent: client.UserAgent, Source: "login",
		})
		return nil, ErrInvalidCredentials
	}
	result, err := s.issueSession(ctx, user.ID, client, rememberMe)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user.ID, audit.ActionLogin, result.SessionID, "")
	s.emit(ctx, &telemetry.Event{
		Type: telemetry.EventSessionCreated, UserID: user.ID, SessionID: result.SessionID,
		IP: client.IP, UserAgent: client.UserAgent, Source: "login",
	})
	return result, nil
}

// Refresh exchanges a refresh token for a new token pair, rotating the
// session. The presented token's session is removed before anything else, so
// the token is single-use regardless of how validation turns out: a stolen or
// tampered token is burned on first presentation.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientMeta) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	now := time.Now().UTC()

	// Atomic delete-and-return; at most one concurrent caller gets the row.
	sess, err := s.sessions.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			s.audit(ctx, "", audit.ActionRefreshDenied, "", "token does not resolve to a live session")
			s.emit(ctx, &telemetry.Event{
				Type: telemetry.EventRefreshDenied, Outcome: telemetry.OutcomeInvalidToken,
				IP: client.IP, UserAgent: client.UserAgent, Source: "refresh",
			})
			return nil, ErrInvalidRefreshToken
		}
		s.emit(ctx, &telemetry.Event{
			Type: telemetry.EventRefreshDenied, Outcome: telemetry.OutcomeStoreUnavailable,
			IP: client.IP, UserAgent: client.UserAgent, Source: "refresh",
		})
		return nil, err
	}

	// Validate the now-detached record. The old session stays gone on failure.
	if err := s.sessions.Verify(sess, client.Fingerprint, now); err != nil {
		s.audit(ctx, sess.UserID, audit.ActionRefreshDenied, sess.ID, err.Error())
		s.log.WithFields(logrus.Fields{
			"user_id":    sess.UserID,
			"session_id": sess.ID,
			"reason":     err.Error(),
		}).Warn("auth: refresh rejected")
		s.emit(ctx, &telemetry.Event{
			Type: telemetry.EventRefreshDenied, Outcome: verifyOutcome(err),
			UserID: sess.UserID, SessionID: sess.ID,
			IP: client.IP, UserAgent: client.UserAgent, Source: "refresh",
		})
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() {
		s.audit(ctx, sess.UserID, audit.ActionRefreshDenied, sess.ID, "account inactive")
		s.emit(ctx, &telemetry.Event{
			Type: telemetry.EventRefreshDenied, Outcome: telemetry.OutcomeAccountInactive,
			UserID: sess.UserID, SessionID: sess.ID,
			IP: client.IP, UserAgent: client.UserAgent, Source: "refresh",
		})
		return nil, ErrAccountInactive
	}

	result, err := s.issueSession(ctx, user.ID, client, sess.RememberMe)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user.ID, audit.ActionRefresh, result.SessionID, "")
	s.emit(ctx, &telemetry.Event{
		Type: telemetry.EventSessionRotated, Outcome: telemetry.OutcomeOK,
		UserID: user.ID, SessionID: result.SessionID,
		IP: client.IP, UserAgent: client.UserAgent, Source: "refresh",
	})
	return result, nil
}

// Logout invalidates the session for the given refresh token. With allDevices
// it removes every session belonging to the token's owner. Unknown tokens are
// not an error; the reported count is zero. Returns the number of sessions
// invalidated.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, allDevices bool) (int64, error) {
	if refreshToken == "" {
		return 0, nil
	}
	sess, err := s.sessions.Lookup(ctx, refreshToken)
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return 0, nil
	}

	if limited := s.logoutThrottled(ctx, sess.UserID); limited {
		return 0, ErrRateLimited
	}

	if allDevices {
		n, err := s.sessions.InvalidateAllUserSessions(ctx, sess.UserID)
		if err != nil {
			return 0, err
		}
		s.audit(ctx, sess.UserID, audit.ActionLogoutAll, sess.ID, "")
		s.emit(ctx, &telemetry.Event{
			Type: telemetry.EventSessionInvalidated, UserID: sess.UserID,
			Count: n, Source: "logout_all",
		})
		return n, nil
	}
	n, err := s.sessions.InvalidateSession(ctx, refreshToken)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, sess.UserID, audit.ActionLogout, sess.ID, "")
	s.emit(ctx, &telemetry.Event{
		Type: telemetry.EventSessionInvalidated, UserID: sess.UserID, SessionID: sess.ID,
		Count: n, Source: "logout",
	})
	return n, nil
}

// LogoutOthers invalidates every session for the user except the current one.
// Returns the number of sessions invalidated.
func (s *AuthService) LogoutOthers(ctx context.Context, userID, currentSessionID string) (int64, error) {
	n, err := s.sessions.InvalidateOtherSessions(ctx, userID, currentSessionID)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, userID, audit.ActionLogoutAll, currentSessionID, "others")
	s.emit(ctx, &telemetry.Event{
		Type: telemetry.EventSessionInvalidated, UserID: userID,
		Count: n, Source: "logout_others",
	})
	return n, nil
}

// ChangePassword verifies the old password, stores the new hash, and
// invalidates sessions per the configured policy ("all" removes every
// session; "others" keeps the current one). Returns the number of sessions
// invalidated.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) (int64, error) {
	if err := validatePassword(newPassword); err != nil {
		return 0, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil || !user.Active() {
		return 0, ErrAccountInactive
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(oldPassword)); err != nil {
		return 0, ErrInvalidCredentials
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return 0, err
	}
	if err := s.users.UpdatePassword(ctx, userID, hashed, time.Now().UTC()); err != nil {
		return 0, err
	}

	var n int64
	if s.cfg.PasswordChangePolicy == "all" || currentSessionID == "" {
		n, err = s.sessions.InvalidateAllUserSessions(ctx, userID)
	} else {
		n, err = s.sessions.InvalidateOtherSessions(ctx, userID, currentSessionID)
	}
	if err != nil {
		return 0, err
	}
	s.audit(ctx, userID, audit.ActionPasswordChanged, currentSessionID, "")
	s.emit(ctx, &telemetry.Event{
		Type: telemetry.EventSessionInvalidated, UserID: userID,
		Count: n, Source: "password_change",
	})
	return n, nil
}

// ListSessions returns the user's live sessions, for a "your devices" view.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*SessionInfo, error) {
	sessions, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionInfo, len(sessions))
	for i, sess := range sessions {
		out[i] = &SessionInfo{
			ID:         sess.ID,
			IP:         sess.IP,
			UserAgent:  sess.UserAgent,
			DeviceInfo: sess.DeviceInfo,
			RememberMe: sess.RememberMe,
			CreatedAt:  sess.CreatedAt,
			ExpiresAt:  sess.ExpiresAt,
		}
	}
	return out, nil
}

// SessionInfo is the caller-facing view of a session. Token material is never included.
type SessionInfo struct {
	ID         string
	IP         string
	UserAgent  string
	DeviceInfo string
	RememberMe bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// issueSession creates a session and mints the matching access token.
func (s *AuthService) issueSession(ctx context.Context, userID string, client ClientMeta, rememberMe bool) (*AuthResult, error) {
	created, err := s.sessions.Create(ctx, time.Now().UTC(), sessionsvc.NewSession{
		UserID:      userID,
		IP:          client.IP,
		UserAgent:   client.UserAgent,
		Fingerprint: client.Fingerprint,
		DeviceInfo:  client.DeviceInfo,
		RememberMe:  rememberMe,
	})
	if err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(userID, created.Session.ID)
	if err != nil {
		// The orphaned session expires on its own; the reaper also sweeps it.
		_, _ = s.sessions.InvalidateSession(ctx, created.RefreshToken)
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: created.RefreshToken,
		SessionID:    created.Session.ID,
		UserID:       userID,
		ExpiresAt:    accessExp,
	}, nil
}

// logoutThrottled reports whether the user has exceeded the logout budget.
// Best-effort: counting failures allow the logout.
func (s *AuthService) logoutThrottled(ctx context.Context, userID string) bool {
	if s.cfg.LogoutRateMax <= 0 {
		return false
	}
	n, err := s.sessions.CountRecentLogouts(ctx, userID, s.cfg.LogoutRateWindow)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("auth: logout rate check failed, allowing")
		return false
	}
	return n >= s.cfg.LogoutRateMax
}

func (s *AuthService) audit(ctx context.Context, userID, action, sessionID, detail string) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogEvent(ctx, userID, action, sessionID, detail)
}

func (s *AuthService) emit(ctx context.Context, event *telemetry.Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	telemetry.EmitAsync(s.emitter, ctx, event)
}

// verifyOutcome maps a verification error to its telemetry outcome label.
func verifyOutcome(err error) string {
	switch {
	case errors.Is(err, sessionsvc.ErrSessionExpired):
		return telemetry.OutcomeExpired
	case errors.Is(err, sessionsvc.ErrFingerprintMismatch):
		return telemetry.OutcomeFingerprintMismatch
	default:
		return telemetry.OutcomeInvalidToken
	}
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: password must be at least 12 characters", ErrValidation)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		case r < '0' || (r > '9' && r < 'A') || (r > 'Z' && r < 'a') || r > 'z':
			hasSymbol = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrValidation)
	}
	if !hasLower {
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrValidation)
	}
	if !hasNumber {
		return fmt.Errorf("%w: password must contain at least one number", ErrValidation)
	}
	if !hasSymbol {
		return fmt.Errorf("%w: password must contain at least one symbol", ErrValidation)
	}
	return nil
}
