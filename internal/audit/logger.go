package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storyhub/backend/internal/audit/domain"
	auditrepo "storyhub/backend/internal/audit/repository"
)

// Actions recorded by the auth and session code paths.
const (
	ActionLogin           = "auth.login"
	ActionLoginDenied     = "auth.login_denied"
	ActionRegister        = "auth.register"
	ActionRefresh         = "auth.refresh"
	ActionRefreshDenied   = "auth.refresh_denied"
	ActionLogout          = "auth.logout"
	ActionLogoutAll       = "auth.logout_all"
	ActionPasswordChanged = "auth.password_changed"
	ActionSessionCreated  = "session.created"
)

// ClientExtractor returns the client IP and user agent from the request context.
type ClientExtractor func(context.Context) (ip, userAgent string)

type clientCtxKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClient returns a context carrying the request's client attributes for
// audit entries written downstream. The HTTP layer attaches this once per
// request.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientCtxKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

// ClientFromContext is the ClientExtractor over contexts prepared by
// WithClient. Returns empty strings when the context carries no client.
func ClientFromContext(ctx context.Context) (ip, userAgent string) {
	if ci, ok := ctx.Value(clientCtxKey{}).(clientInfo); ok {
		return ci.ip, ci.userAgent
	}
	return "", ""
}

// AuditLogger writes a single audit event with explicit action/resource. Used by auth and session code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional client extractor.
type Logger struct {
	repo      auditrepo.Repository
	extractor ClientExtractor
	log       *logrus.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses extractor for client attributes.
// extractor may be nil; then IP is recorded as "unknown" and the user agent is empty.
func NewLogger(repo auditrepo.Repository, extractor ClientExtractor, log *logrus.Logger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{repo: repo, extractor: extractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip, userAgent := "", ""
	if l.extractor != nil {
		ip, userAgent = l.extractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		UserAgent: userAgent,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"action":   action,
			"resource": resource,
		}).Warn("audit: failed to log event")
	}
}
