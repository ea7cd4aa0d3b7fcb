package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name    string
		rps     float64
		burst   int
		calls   int
		allowed int
	}{
		{name: "burst then block", rps: 1, burst: 2, calls: 4, allowed: 2},
		{name: "unlimited", rps: 0, burst: 0, calls: 50, allowed: 50},
		{name: "burst floor", rps: 1, burst: 0, calls: 3, allowed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.rps, tt.burst)
			got := 0
			for i := 0; i < tt.calls; i++ {
				if l.Allow() {
					got++
				}
			}
			if got != tt.allowed {
				t.Errorf("expected %d allowed, got %d", tt.allowed, got)
			}
		})
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := New(0.1, 1)
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected wait to fail on deadline")
	}
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil || !l.Allow() {
		t.Error("nil limiter must not throttle")
	}
}
