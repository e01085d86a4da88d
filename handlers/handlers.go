// ABOUTME: HTTP handlers for the portal gateway
// ABOUTME: Holds shared dependencies and the JSON response helpers

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/edusphere/portal-gateway/config"
	"github.com/edusphere/portal-gateway/features"
	"github.com/edusphere/portal-gateway/models"
	"github.com/edusphere/portal-gateway/webhook"
)

type Handler struct {
	cfg    *config.Config
	client *http.Client
	routes []ProxyRoute

	// Optional; their endpoints answer 503 until set
	flags      *features.Set
	verifier   webhook.Verifier
	dispatcher *webhook.Dispatcher
}

// NewHandler creates the gateway handler. client is shared by every proxy
// route; nil means http.DefaultClient.
func NewHandler(cfg *config.Config, client *http.Client, routes []ProxyRoute) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{cfg: cfg, client: client, routes: routes}
}

// SetFeatures enables GET /api/v1/features
func (h *Handler) SetFeatures(flags *features.Set) {
	h.flags = flags
}

// SetWebhook enables POST /api/v1/webhooks/identity
func (h *Handler) SetWebhook(verifier webhook.Verifier, dispatcher *webhook.Dispatcher) {
	h.verifier = verifier
	h.dispatcher = dispatcher
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	h.writeJSON(w, code, models.ErrorResponse{Error: message})
}

func (h *Handler) writeErrorDetails(w http.ResponseWriter, message, details string, code int) {
	h.writeJSON(w, code, models.ErrorResponse{Error: message, Details: details})
}
