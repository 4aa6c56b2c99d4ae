package middleware

import (
	"github.com/gin-gonic/gin"

	"storyhub/backend/internal/audit"
)

// ClientContext stamps the request context with the client IP and user agent
// so audit entries written anywhere below the handler carry them.
func ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
