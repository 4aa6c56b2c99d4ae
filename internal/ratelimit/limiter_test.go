package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if !l.Allow(context.Background(), "k") {
		t.Error("nil limiter should allow")
	}
}

func TestNewWithNilClient(t *testing.T) {
	l := New(nil, time.Minute, 10, nil)
	if l != nil {
		t.Error("New with nil client should return nil limiter")
	}
	if !l.Allow(context.Background(), "k") {
		t.Error("disabled limiter should allow")
	}
}
