package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"storyhub/backend/internal/audit"
	auditdomain "storyhub/backend/internal/audit/domain"
	"storyhub/backend/internal/auth/service"
	"storyhub/backend/internal/security"
	"storyhub/backend/internal/server/middleware"
	sessiondomain "storyhub/backend/internal/session/domain"
	sessionrepo "storyhub/backend/internal/session/repository"
	sessionsvc "storyhub/backend/internal/session/service"
	userdomain "storyhub/backend/internal/user/domain"
)

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	return nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
	}
	return nil
}

type memSessionRepo struct {
	mu     sync.Mutex
	byHash map[string]*sessiondomain.Session
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[s.RefreshTokenHash]; ok {
		return sessionrepo.ErrRefreshTokenConflict
	}
	s2 := *s
	r.byHash[s.RefreshTokenHash] = &s2
	return nil
}

func (r *memSessionRepo) GetByRefreshTokenHash(ctx context.Context, hash string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byHash[hash], nil
}

func (r *memSessionRepo) ConsumeByRefreshTokenHash(ctx context.Context, hash string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byHash[hash]
	if !ok {
		return nil, nil
	}
	delete(r.byHash, hash)
	return s, nil
}

func (r *memSessionRepo) DeleteByRefreshTokenHash(ctx context.Context, hash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[hash]; !ok {
		return 0, nil
	}
	delete(r.byHash, hash)
	return 1, nil
}

func (r *memSessionRepo) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, s := range r.byHash {
		if s.UserID == userID {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) DeleteOtherByUser(ctx context.Context, userID, keepSessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, s := range r.byHash {
		if s.UserID == userID && s.ID != keepSessionID {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *memSessionRepo) ListByUser(ctx context.Context, userID string, now time.Time) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.byHash {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) CountRecentLogouts(ctx context.Context, userID string, window time.Duration) (int64, error) {
	return 0, nil
}

// memAuditRepo collects audit entries written during a request.
type memAuditRepo struct {
	mu      sync.Mutex
	entries []*auditdomain.AuditLog
}

func (r *memAuditRepo) GetByID(ctx context.Context, id string) (*auditdomain.AuditLog, error) {
	return nil, nil
}

func (r *memAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	return nil, nil
}

func (r *memAuditRepo) Create(ctx context.Context, entry *auditdomain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) byAction(action string) *auditdomain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	r, _ := newTestRouterWithAudit(t)
	return r
}

func newTestRouterWithAudit(t *testing.T) (*gin.Engine, *memAuditRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := &memUserRepo{byID: map[string]*userdomain.User{}}
	sessions := sessionsvc.NewService(&memSessionRepo{byHash: map[string]*sessiondomain.Session{}}, sessionsvc.Config{
		RefreshTTL:           24 * time.Hour,
		RefreshTTLRememberMe: 48 * time.Hour,
		RefreshTokenBytes:    32,
	})
	auditLog := &memAuditRepo{}
	auditor := audit.NewLogger(auditLog, audit.ClientFromContext, nil)
	auth := service.NewAuthService(users, sessions, security.NewHasher(4), tokens, auditor, nil, service.Config{
		PasswordChangePolicy: "others",
	}, nil)

	r := gin.New()
	r.Use(middleware.ClientContext())
	v1 := r.Group("/v1")
	NewHandler(auth, nil).RegisterRoutes(v1, middleware.RequireAuth(tokens))
	return r, auditLog
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

const testPassword = "Sup3r-secret-pw!"

func registerAndLogin(t *testing.T, r *gin.Engine) map[string]any {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/auth/register",
		`{"email":"u1@example.com","password":"`+testPassword+`","name":"U One"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/v1/auth/login",
		`{"email":"u1@example.com","password":"`+testPassword+`","fingerprint":"fpA"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	return decodeBody(t, w)
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	r := newTestRouter(t)
	login := registerAndLogin(t, r)

	refreshToken, _ := login["refreshToken"].(string)
	if refreshToken == "" || login["accessToken"] == "" {
		t.Fatal("login response missing tokens")
	}

	w := doJSON(t, r, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"`+refreshToken+`","fingerprint":"fpA"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", w.Code, w.Body.String())
	}
	rotated := decodeBody(t, w)
	newToken, _ := rotated["refreshToken"].(string)
	if newToken == "" || newToken == refreshToken {
		t.Fatal("refresh must issue a new token")
	}

	// The old token is burned.
	w = doJSON(t, r, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"`+refreshToken+`","fingerprint":"fpA"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reused token: status %d, want 401", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/auth/logout",
		`{"refreshToken":"`+newToken+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status %d body %s", w.Code, w.Body.String())
	}
	if n := decodeBody(t, w)["sessionsInvalidated"]; n != float64(1) {
		t.Errorf("sessionsInvalidated = %v, want 1", n)
	}
}

func TestRefresh_WrongFingerprintIsUniform401(t *testing.T) {
	r := newTestRouter(t)
	login := registerAndLogin(t, r)
	refreshToken := login["refreshToken"].(string)

	w := doJSON(t, r, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"`+refreshToken+`","fingerprint":"fpB"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
	// Same generic message as an invalid token; no oracle for the cause.
	if msg := decodeBody(t, w)["error"]; msg != "unauthorized" {
		t.Errorf("error = %v, want generic unauthorized", msg)
	}
}

func TestStrictBinding_RejectsUnknownFields(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/v1/auth/login",
		`{"email":"u1@example.com","password":"x","surprise":true}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status %d, want 400", w.Code)
	}
}

func TestRegister_DuplicateIs409(t *testing.T) {
	r := newTestRouter(t)
	body := `{"email":"u1@example.com","password":"` + testPassword + `","name":"U"}`
	if w := doJSON(t, r, http.MethodPost, "/v1/auth/register", body, ""); w.Code != http.StatusCreated {
		t.Fatalf("register: status %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/auth/register", body, ""); w.Code != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", w.Code)
	}
}

func TestSessionRoutes_RequireBearer(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/auth/sessions", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no bearer: status %d, want 401", w.Code)
	}

	login := registerAndLogin(t, r)
	access := login["accessToken"].(string)

	w = doJSON(t, r, http.MethodGet, "/v1/auth/sessions", "", access)
	if w.Code != http.StatusOK {
		t.Fatalf("with bearer: status %d body %s", w.Code, w.Body.String())
	}
	sessions, _ := decodeBody(t, w)["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if _, hasToken := sessions[0].(map[string]any)["refreshToken"]; hasToken {
		t.Error("session listing must not expose token material")
	}
}

func TestLogoutOthers_KeepsCurrentSession(t *testing.T) {
	r := newTestRouter(t)
	first := registerAndLogin(t, r)

	// Second device.
	w := doJSON(t, r, http.MethodPost, "/v1/auth/login",
		`{"email":"u1@example.com","password":"`+testPassword+`","fingerprint":"fpB"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("second login: status %d", w.Code)
	}

	access := first["accessToken"].(string)
	w = doJSON(t, r, http.MethodDelete, "/v1/auth/sessions", "", access)
	if w.Code != http.StatusOK {
		t.Fatalf("logout others: status %d body %s", w.Code, w.Body.String())
	}
	if n := decodeBody(t, w)["sessionsInvalidated"]; n != float64(1) {
		t.Errorf("sessionsInvalidated = %v, want 1", n)
	}

	// Current refresh token still works.
	refreshToken := first["refreshToken"].(string)
	w = doJSON(t, r, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"`+refreshToken+`","fingerprint":"fpA"}`, "")
	if w.Code != http.StatusOK {
		t.Errorf("current session refresh: status %d, want 200", w.Code)
	}
}

func TestChangePassword(t *testing.T) {
	r := newTestRouter(t)
	login := registerAndLogin(t, r)
	access := login["accessToken"].(string)

	w := doJSON(t, r, http.MethodPost, "/v1/auth/password",
		`{"oldPassword":"`+testPassword+`","newPassword":"An0ther-secret-pw!"}`, access)
	if w.Code != http.StatusOK {
		t.Fatalf("change password: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/v1/auth/login",
		`{"email":"u1@example.com","password":"An0ther-secret-pw!","fingerprint":"fpA"}`, "")
	if w.Code != http.StatusOK {
		t.Errorf("login with new password: status %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/v1/auth/login",
		`{"email":"u1@example.com","password":"`+testPassword+`","fingerprint":"fpA"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("login with old password: status %d, want 401", w.Code)
	}
}

func TestLoginAudit_CarriesClientMetadata(t *testing.T) {
	r, auditLog := newTestRouterWithAudit(t)
	registerAndLogin(t, r)

	entry := auditLog.byAction(audit.ActionLogin)
	if entry == nil {
		t.Fatal("no audit entry for login")
	}
	// httptest requests carry RemoteAddr 192.0.2.1:1234.
	if entry.IP != "192.0.2.1" {
		t.Errorf("audit ip = %q, want %q", entry.IP, "192.0.2.1")
	}
	if entry.UserAgent != "test-agent" {
		t.Errorf("audit user_agent = %q, want %q", entry.UserAgent, "test-agent")
	}
	if entry.UserID == "" {
		t.Error("audit entry should carry the user id")
	}
}
