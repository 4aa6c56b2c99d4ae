// Package server assembles the Gin engine: routes, middleware, and health.
package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	authhandler "storyhub/backend/internal/auth/handler"
	"storyhub/backend/internal/ratelimit"
	"storyhub/backend/internal/security"
	"storyhub/backend/internal/server/middleware"
)

// Deps are the wired components the router mounts.
type Deps struct {
	Auth    *authhandler.Handler
	Tokens  *security.TokenProvider
	Limiter *ratelimit.Limiter
	DB      *sql.DB
	Log     *logrus.Logger
}

// NewRouter builds the Gin engine with all routes mounted. The abuse-prone
// auth endpoints sit behind the rate limiter; session-management endpoints
// require a Bearer access token.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog(deps.Log))
	r.Use(middleware.ClientContext())

	r.GET("/healthz", healthz(deps.DB))

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimit(deps.Limiter))
	deps.Auth.RegisterRoutes(v1, middleware.RequireAuth(deps.Tokens))

	return r
}

// requestLog logs one line per request with method, path, status, and latency.
func requestLog(log *logrus.Logger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Info("http request")
	}
}

// healthz reports liveness and, when a DB is wired, store reachability.
func healthz(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
