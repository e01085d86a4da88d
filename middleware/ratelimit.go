// ABOUTME: Fixed-window rate limiting for gateway routes
// ABOUTME: Limits per client IP or per subject within an IP and reports quota in response headers

package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// sweepThreshold is how many keys may accumulate before expired windows are purged
const sweepThreshold = 1024

// DefaultSubjectsPerIP caps the subject windows one address may hold. Further
// subjects from that address share the address's own window.
const DefaultSubjectsPerIP = 16

// subjectSep joins an address key and a token subject, see UserOrIP
const subjectSep = "|user:"

type window struct {
	used  int
	reset time.Time
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration // time until the current window ends
}

// RateLimiter counts requests per key in fixed windows. Keys are produced
// by ClientIP or UserOrIP; subject keys are capped per address.
type RateLimiter struct {
	tier          string
	limit         int
	period        time.Duration
	subjectsPerIP int
	now           func() time.Time

	mu       sync.Mutex
	windows  map[string]*window
	subjects map[string]map[string]struct{} // address key -> live subject keys
}

// NewRateLimiter creates a limiter for the named tier allowing limit
// requests per period.
func NewRateLimiter(tier string, limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		tier:          tier,
		limit:         limit,
		period:        period,
		subjectsPerIP: DefaultSubjectsPerIP,
		now:           time.Now,
		windows:       make(map[string]*window),
		subjects:      make(map[string]map[string]struct{}),
	}
}

// Allow records one request for key.
func (rl *RateLimiter) Allow(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	win, ok := rl.windows[key]
	if !ok {
		key = rl.admitSubject(key, now)
		win, ok = rl.windows[key]
	}
	// The boundary instant belongs to the next window
	if !ok || !now.Before(win.reset) {
		if len(rl.windows) >= sweepThreshold {
			rl.purge(now)
		}
		win = &window{reset: now.Add(rl.period)}
		rl.windows[key] = win
	}

	d := Decision{Limit: rl.limit, Reset: win.reset.Sub(now)}
	if win.used >= rl.limit {
		return d
	}
	win.used++
	d.Allowed = true
	d.Remaining = rl.limit - win.used
	return d
}

// admitSubject returns the key a new window should be opened under. A
// subject key whose address already holds subjectsPerIP live subject
// windows falls back to the address key. Caller holds rl.mu.
func (rl *RateLimiter) admitSubject(key string, now time.Time) string {
	addr, _, ok := strings.Cut(key, subjectSep)
	if !ok {
		return key
	}

	set := rl.subjects[addr]
	if len(set) >= rl.subjectsPerIP {
		for k := range set {
			if win, live := rl.windows[k]; !live || !now.Before(win.reset) {
				delete(rl.windows, k)
				delete(set, k)
			}
		}
	}
	if len(set) >= rl.subjectsPerIP {
		slog.Debug("Subject cap reached, using address window", "tier", rl.tier, "key", addr)
		return addr
	}

	if set == nil {
		set = make(map[string]struct{})
		rl.subjects[addr] = set
	}
	set[key] = struct{}{}
	return key
}

// purge drops expired windows. Caller holds rl.mu.
func (rl *RateLimiter) purge(now time.Time) {
	for k, win := range rl.windows {
		if !now.Before(win.reset) {
			delete(rl.windows, k)
			rl.forgetSubject(k)
		}
	}
}

func (rl *RateLimiter) forgetSubject(key string) {
	addr, _, ok := strings.Cut(key, subjectSep)
	if !ok {
		return
	}
	if set := rl.subjects[addr]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(rl.subjects, addr)
		}
	}
}

// ClientIP keys by the leftmost X-Forwarded-For address, else RemoteAddr.
// The forwarded header is only trustworthy behind an ingress that sets it.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return "ip:" + ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// UserOrIP keys by token subject within the client address when
// BearerClaims found one, so users behind a shared NAT get separate quotas.
// The subject is unverified, so it never leaves the address's scope: a
// forged subject cannot touch another address's windows, and the limiter
// caps how many subjects one address may spread across.
func UserOrIP(r *http.Request) string {
	ip := ClientIP(r)
	if claims := GetUserClaims(r); claims != nil && claims.UserID != "" {
		return ip + subjectSep + claims.UserID
	}
	return ip
}

// RateLimit enforces limiter on every request. A nil limiter disables it,
// as does a key function that yields "".
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if limiter == nil || keyFunc == nil {
			return next
		}

		return func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next(w, r)
				return
			}

			d := limiter.Allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next(w, r)
				return
			}

			retry := int(math.Ceil(d.Reset.Seconds()))
			slog.Warn("Rate limit exceeded",
				"tier", limiter.tier, "key", key, "path", sanitizePath(r.URL.Path), "retry_after", retry)

			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSONErrorDetails(w, "Rate limit exceeded", fmt.Sprintf("retry in %ds", retry), http.StatusTooManyRequests)
		}
	}
}
