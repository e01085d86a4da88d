// ABOUTME: JSON error response helpers for middleware
// ABOUTME: Middleware rejections use the same envelope as handler errors

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/edusphere/portal-gateway/models"
)

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSONErrorDetails(w, message, "", code)
}

func writeJSONErrorDetails(w http.ResponseWriter, message, details string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   message,
		Details: details,
		Code:    code,
	})
}
