// ABOUTME: Builds the gateway's ServeMux with the shared middleware chain
// ABOUTME: Applies claims decoding, logging, recovery, CORS and rate limits per route

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/edusphere/portal-gateway/config"
	"github.com/edusphere/portal-gateway/middleware"
)

// NewRouter registers every route in h behind the middleware chain.
// Claims are decoded first so request logs and rate limit keys can use them.
// Credential routes share a tighter per-IP limit; everything else is keyed
// by token subject within the client IP, falling back to the IP alone.
func NewRouter(h *Handler, cfg *config.Config) *http.ServeMux {
	var authLimiter, defaultLimiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		authLimiter = middleware.NewRateLimiter("auth", cfg.RateLimitAuth, time.Minute)
		defaultLimiter = middleware.NewRateLimiter("default", cfg.RateLimitDefault, time.Minute)
		slog.Info("Rate limiting enabled", "auth_per_min", cfg.RateLimitAuth, "default_per_min", cfg.RateLimitDefault)
	} else {
		slog.Warn("Rate limiting disabled")
	}

	cors := middleware.CORSWithConfig(cfg.CORSAllowedOrigins)
	mux := http.NewServeMux()

	for _, rt := range h.Routes() {
		limit := middleware.RateLimit(defaultLimiter, middleware.UserOrIP)
		if rt.Strict {
			limit = middleware.RateLimit(authLimiter, middleware.ClientIP)
		}
		mux.HandleFunc(rt.Pattern(), middleware.Chain(rt.Handler,
			middleware.BearerClaims,
			middleware.LogRequest,
			middleware.Recover,
			cors,
			limit,
		))
	}

	// Preflight for every API path; CORS answers it before the handler runs
	mux.HandleFunc("OPTIONS /api/v1/", middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, middleware.LogRequest, cors))

	return mux
}
