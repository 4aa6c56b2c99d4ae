// Package handler exposes the auth service over HTTP. Request bodies are
// decoded strictly: unrecognized fields are rejected rather than ignored.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storyhub/backend/internal/auth/service"
	"storyhub/backend/internal/server/middleware"
)

// Handler serves the /v1/auth routes.
type Handler struct {
	auth *service.AuthService
	log  *logrus.Logger
}

// NewHandler returns a Handler over the given auth service.
func NewHandler(auth *service.AuthService, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{auth: auth, log: log}
}

// RegisterRoutes mounts the auth routes on the group. requireAuth protects
// the session-management routes; the token-exchange routes stay public.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.POST("/auth/register", h.register)
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/refresh", h.refresh)
	rg.POST("/auth/logout", h.logout)
	rg.POST("/auth/password", requireAuth, h.changePassword)
	rg.GET("/auth/sessions", requireAuth, h.listSessions)
	rg.DELETE("/auth/sessions", requireAuth, h.logoutOthers)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !h.bindStrict(c, &req) {
		return
	}
	res, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"userId": res.UserID})
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Fingerprint string `json:"fingerprint"`
	DeviceInfo  string `json:"deviceInfo"`
	RememberMe  bool   `json:"rememberMe"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !h.bindStrict(c, &req) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, h.clientMeta(c, req.Fingerprint, req.DeviceInfo), req.RememberMe)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"sessionId":    res.SessionID,
		"expiresAt":    res.ExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	Fingerprint  string `json:"fingerprint"`
	DeviceInfo   string `json:"deviceInfo"`
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !h.bindStrict(c, &req) {
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, h.clientMeta(c, req.Fingerprint, req.DeviceInfo))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"sessionId":    res.SessionID,
		"expiresAt":    res.ExpiresAt,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	AllDevices   bool   `json:"allDevices"`
}

func (h *Handler) logout(c *gin.Context) {
	var req logoutRequest
	if !h.bindStrict(c, &req) {
		return
	}
	n, err := h.auth.Logout(c.Request.Context(), req.RefreshToken, req.AllDevices)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionsInvalidated": n})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) changePassword(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.writeError(c, service.ErrInvalidCredentials)
		return
	}
	sessionID, _ := middleware.GetSessionID(c)
	var req changePasswordRequest
	if !h.bindStrict(c, &req) {
		return
	}
	n, err := h.auth.ChangePassword(c.Request.Context(), userID, sessionID, req.OldPassword, req.NewPassword)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionsInvalidated": n})
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.writeError(c, service.ErrInvalidCredentials)
		return
	}
	sessions, err := h.auth.ListSessions(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]gin.H, len(sessions))
	for i, s := range sessions {
		out[i] = gin.H{
			"sessionId":  s.ID,
			"ip":         s.IP,
			"userAgent":  s.UserAgent,
			"deviceInfo": s.DeviceInfo,
			"rememberMe": s.RememberMe,
			"createdAt":  s.CreatedAt,
			"expiresAt":  s.ExpiresAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *Handler) logoutOthers(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.writeError(c, service.ErrInvalidCredentials)
		return
	}
	sessionID, _ := middleware.GetSessionID(c)
	n, err := h.auth.LogoutOthers(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionsInvalidated": n})
}

// clientMeta assembles the request attributes bound to a session.
func (h *Handler) clientMeta(c *gin.Context, fingerprint, deviceInfo string) service.ClientMeta {
	return service.ClientMeta{
		Fingerprint: fingerprint,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		DeviceInfo:  deviceInfo,
	}
}

// bindStrict decodes the JSON body into out and rejects unknown fields.
// Writes a 400 response and returns false on failure.
func (h *Handler) bindStrict(c *gin.Context, out any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps service errors to HTTP statuses. The security outcomes all
// collapse to a generic 401; detail stays in server-side logs and audit.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	default:
		h.log.WithError(err).Error("auth: request failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	}
}
