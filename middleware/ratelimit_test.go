// ABOUTME: Tests for the fixed-window rate limiter and its middleware
// ABOUTME: Uses a controllable clock for window expiry and httptest for the HTTP behavior

package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// manualClock lets tests move time without sleeping
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int) (*RateLimiter, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter("test", limit, time.Minute)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_CountsDownThenRejects(t *testing.T) {
	rl, _ := newTestLimiter(3)

	for want := 2; want >= 0; want-- {
		d := rl.Allow("ip:198.51.100.1")
		if !d.Allowed {
			t.Fatalf("request with %d remaining should be allowed", want)
		}
		if d.Remaining != want {
			t.Errorf("Remaining = %d, want %d", d.Remaining, want)
		}
	}

	d := rl.Allow("ip:198.51.100.1")
	if d.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if d.Remaining != 0 || d.Limit != 3 {
		t.Errorf("Decision = %+v, want Limit 3 Remaining 0", d)
	}
	if d.Reset <= 0 || d.Reset > time.Minute {
		t.Errorf("Reset = %v, want within one window", d.Reset)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(1)

	if !rl.Allow("user:u-1").Allowed {
		t.Fatal("first key should be allowed")
	}
	if !rl.Allow("user:u-2").Allowed {
		t.Error("second key should have its own window")
	}
	if rl.Allow("user:u-1").Allowed {
		t.Error("first key should now be limited")
	}
}

func TestRateLimiter_WindowBoundaryStartsFresh(t *testing.T) {
	rl, clock := newTestLimiter(1)

	rl.Allow("k")
	clock.Advance(59 * time.Second)
	if rl.Allow("k").Allowed {
		t.Fatal("still inside the window")
	}

	clock.Advance(time.Second)
	d := rl.Allow("k")
	if !d.Allowed {
		t.Fatal("the boundary instant should open a new window")
	}
	if d.Reset != time.Minute {
		t.Errorf("Reset = %v, want a full window", d.Reset)
	}
}

func TestRateLimiter_PurgesExpiredWindows(t *testing.T) {
	rl, clock := newTestLimiter(5)

	for i := 0; i < sweepThreshold; i++ {
		rl.Allow(fmt.Sprintf("ip:10.0.%d.%d", i/256, i%256))
	}
	clock.Advance(2 * time.Minute)
	rl.Allow("ip:192.0.2.1")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.windows) != 1 {
		t.Errorf("expected only the live window after purge, got %d", len(rl.windows))
	}
}

func TestRateLimiter_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	rl, _ := newTestLimiter(50)

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d requests, want exactly 50", allowed)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"remote addr with port", "", "203.0.113.9:52100", "ip:203.0.113.9"},
		{"remote addr without port", "", "203.0.113.9", "ip:203.0.113.9"},
		{"leftmost forwarded address", "198.51.100.4, 10.0.0.1", "10.0.0.2:80", "ip:198.51.100.4"},
		{"ipv6 forwarded", "2001:db8::1", "10.0.0.2:80", "ip:2001:db8::1"},
		{"garbage forwarded falls back", "not-an-ip", "10.0.0.2:80", "ip:10.0.0.2"},
		{"blank forwarded falls back", " , 198.51.100.4", "10.0.0.2:80", "ip:10.0.0.2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := ClientIP(req); got != tc.want {
				t.Errorf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUserOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.RemoteAddr = "203.0.113.9:1234"

	if got := UserOrIP(req); got != "ip:203.0.113.9" {
		t.Errorf("without claims: got %q", got)
	}

	ctx := context.WithValue(req.Context(), userClaimsKey, &UserClaims{UserID: "u-42", Email: "a@example.com"})
	if got := UserOrIP(req.WithContext(ctx)); got != "ip:203.0.113.9|user:u-42" {
		t.Errorf("with claims: got %q", got)
	}
}

func TestRateLimiter_ForgedSubjectsShareAddressBudget(t *testing.T) {
	rl, _ := newTestLimiter(3)
	rl.subjectsPerIP = 2

	allowed := 0
	for i := 0; i < 50; i++ {
		if rl.Allow(fmt.Sprintf("ip:198.51.100.7|user:forged-%d", i)).Allowed {
			allowed++
		}
	}
	// two subject windows get one request each, the rest drain the address window
	if allowed != 5 {
		t.Errorf("allowed %d forged requests, want 5", allowed)
	}

	// The same subject from another address is untouched
	for i := 0; i < 3; i++ {
		if !rl.Allow("ip:203.0.113.5|user:forged-0").Allowed {
			t.Fatalf("victim request %d rejected", i+1)
		}
	}
}

func TestRateLimiter_ExpiredSubjectsFreeSlots(t *testing.T) {
	rl, clock := newTestLimiter(3)
	rl.subjectsPerIP = 1

	rl.Allow("ip:198.51.100.8|user:a")
	rl.Allow("ip:198.51.100.8|user:b")
	if _, own := rl.windows["ip:198.51.100.8|user:b"]; own {
		t.Fatal("second subject should use the address window while the cap is full")
	}

	clock.Advance(time.Minute)
	rl.Allow("ip:198.51.100.8|user:b")
	if _, own := rl.windows["ip:198.51.100.8|user:b"]; !own {
		t.Error("expired subject window should free a slot")
	}
	if _, stale := rl.windows["ip:198.51.100.8|user:a"]; stale {
		t.Error("expired subject window should be dropped")
	}
}

func TestRateLimit_DisabledWhenLimiterNil(t *testing.T) {
	calls := 0
	h := RateLimit(nil, ClientIP)(func(w http.ResponseWriter, r *http.Request) { calls++ })

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Error("disabled limiter should not set quota headers")
		}
	}
	if calls != 5 {
		t.Errorf("handler called %d times, want 5", calls)
	}
}

func TestRateLimit_EmptyKeyPassesThrough(t *testing.T) {
	rl, _ := newTestLimiter(1)
	calls := 0
	h := RateLimit(rl, func(*http.Request) string { return "" })(func(w http.ResponseWriter, r *http.Request) { calls++ })

	for i := 0; i < 3; i++ {
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}
}

func TestRateLimit_QuotaHeadersAnd429(t *testing.T) {
	rl, _ := newTestLimiter(2)
	h := RateLimit(rl, ClientIP)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	first := send()
	if first.Header().Get("X-RateLimit-Limit") != "2" || first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("quota headers = %q/%q, want 2/1",
			first.Header().Get("X-RateLimit-Limit"), first.Header().Get("X-RateLimit-Remaining"))
	}
	send()

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("error = %v", body["error"])
	}
	if body["details"] != "retry in 60s" {
		t.Errorf("details = %v", body["details"])
	}
	if body["code"] != float64(http.StatusTooManyRequests) {
		t.Errorf("code = %v", body["code"])
	}
}
