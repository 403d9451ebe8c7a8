package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{Burst: 2, RefillPerIPPerMin: 60})

	tests := []struct {
		name      string
		key       string
		at        time.Time
		wantOK    bool
		wantRetry int
	}{
		{name: "first token", key: "1.1.1.1", at: now, wantOK: true},
		{name: "second token", key: "1.1.1.1", at: now, wantOK: true},
		{name: "burst exhausted", key: "1.1.1.1", at: now, wantOK: false, wantRetry: 1},
		{name: "other ip has its own bucket", key: "2.2.2.2", at: now, wantOK: true},
		{name: "refilled after a second", key: "1.1.1.1", at: now.Add(time.Second), wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _, retry := l.allow(tt.key, tt.at)
			if ok != tt.wantOK {
				t.Fatalf("allow() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok && retry != tt.wantRetry {
				t.Errorf("retry = %d, want %d", retry, tt.wantRetry)
			}
		})
	}
}

func TestLimiterRefusalDoesNotConsume(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 60})

	if ok, _, _ := l.allow("ip", now); !ok {
		t.Fatal("first call should pass")
	}
	for i := 0; i < 3; i++ {
		if ok, _, _ := l.allow("ip", now); ok {
			t.Fatal("bucket should be empty")
		}
	}
	if ok, _, _ := l.allow("ip", now.Add(time.Second)); !ok {
		t.Error("refused calls must not push the next token further away")
	}
}

func TestLimiterSweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 1, IdleTTL: time.Minute, SweepInterval: time.Minute})
	l.lastSweep = now

	l.allow("old", now)
	l.allow("new", now.Add(90*time.Second))

	if _, ok := l.buckets["old"]; ok {
		t.Error("idle bucket should have been swept")
	}
	if _, ok := l.buckets["new"]; !ok {
		t.Error("active bucket was swept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/session/login", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Errorf("X-RateLimit-Limit = %q, want 1", got)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/session/login", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}
