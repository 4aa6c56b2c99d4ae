// Package ratelimit provides a Redis-backed fixed-window rate limiter for
// abuse-prone auth endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Limiter counts hits per key in fixed windows. A nil Limiter allows everything,
// and Redis errors fail open: availability of the auth endpoints is preferred
// over strict enforcement when the counter store is down.
type Limiter struct {
	client *redis.Client
	prefix string
	window time.Duration
	max    int64
	log    *logrus.Logger
}

// New returns a Limiter over the given client. client may be nil to disable limiting.
func New(client *redis.Client, window time.Duration, max int64, log *logrus.Logger) *Limiter {
	if client == nil {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Limiter{
		client: client,
		prefix: "ratelimit:",
		window: window,
		max:    max,
		log:    log,
	}
}

// Allow records one hit for key and reports whether the caller is within the
// window's budget. The first hit in a window sets the key's expiry.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	fullKey := fmt.Sprintf("%s%s", l.prefix, key)
	n, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		l.log.WithError(err).WithField("key", key).Warn("ratelimit: incr failed, allowing")
		return true
	}
	if n == 1 {
		if err := l.client.Expire(ctx, fullKey, l.window).Err(); err != nil {
			l.log.WithError(err).WithField("key", key).Warn("ratelimit: expire failed")
		}
	}
	return n <= l.max
}
