// ABOUTME: HTTP handler for feature flag evaluation
// ABOUTME: Returns every flag's value for a user and role

package handlers

import (
	"net/http"

	"github.com/edusphere/portal-gateway/middleware"
	"github.com/edusphere/portal-gateway/models"
)

type featuresResponse struct {
	Flags map[string]bool `json:"flags"`
}

// Features handles GET /api/v1/features?user_id=&role=. Without a user_id
// query parameter the caller's token subject is used.
func (h *Handler) Features(w http.ResponseWriter, r *http.Request) {
	if h.flags == nil {
		h.writeError(w, "Feature flags not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	userID := q.Get("user_id")
	roleName := q.Get("role")
	if claims := middleware.GetUserClaims(r); claims != nil {
		if userID == "" {
			userID = claims.UserID
		}
		if roleName == "" {
			roleName = claims.Role
		}
	}

	role, err := models.ParseRole(roleName)
	if err != nil {
		h.writeErrorDetails(w, "Invalid role", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, featuresResponse{Flags: h.flags.Evaluate(userID, role)})
}
