// ABOUTME: Composes gateway middleware around a handler
// ABOUTME: The first middleware listed runs first on the way in

package middleware

import "net/http"

// Chain wraps h so that Chain(h, BearerClaims, LogRequest) serves as
// BearerClaims(LogRequest(h)).
func Chain(h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
