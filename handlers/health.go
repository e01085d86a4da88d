// ABOUTME: HTTP handler for the gateway health endpoint
// ABOUTME: Reports configured upstreams and the number of proxy routes

package handlers

import (
	"net/http"

	"github.com/edusphere/portal-gateway/models"
)

// Health returns gateway status. Upstreams are not contacted.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "ok",
		Upstreams: make(map[string]string),
		Routes:    len(h.routes),
	}
	if h.cfg != nil {
		for _, name := range h.cfg.UpstreamNames() {
			resp.Upstreams[name], _ = h.cfg.UpstreamURL(name)
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
