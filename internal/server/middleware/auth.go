// Package middleware provides the Gin middleware for the HTTP server:
// Bearer-token authentication and per-endpoint rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storyhub/backend/internal/security"
)

const bearerPrefix = "bearer "

// Context keys set by RequireAuth for downstream handlers.
const (
	UserIDKey    = "user_id"
	SessionIDKey = "session_id"
)

// RequireAuth validates the Bearer (access) token from the Authorization
// header and sets user_id and session_id in the Gin context. Requests with a
// missing or invalid token are rejected with 401 before the handler runs.
func RequireAuth(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			unauthorized(c)
			return
		}
		userID, sessionID, err := tokens.ValidateAccess(token)
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(UserIDKey, userID)
		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}

// GetUserID returns the user_id set by RequireAuth, or "", false.
func GetUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetSessionID returns the session_id set by RequireAuth, or "", false.
func GetSessionID(c *gin.Context) (string, bool) {
	v, ok := c.Get(SessionIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(c *gin.Context) string {
	v := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
