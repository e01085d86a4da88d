// ABOUTME: Panic recovery middleware
// ABOUTME: Converts a handler panic into a logged 500 error envelope

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recover catches panics from next, logs them with the request ID and
// answers 500 so one bad request cannot take the gateway down.
func Recover(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("Handler panicked",
				"request_id", RequestID(r),
				"path", sanitizePath(r.URL.Path),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}()
		next(w, r)
	}
}
