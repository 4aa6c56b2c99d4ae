package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storyhub/backend/internal/ratelimit"
)

// RateLimit rejects requests over the per-IP, per-route budget with 429.
// A nil limiter disables limiting (e.g. when Redis is not configured).
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()
		if !limiter.Allow(c.Request.Context(), key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
