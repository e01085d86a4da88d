// ABOUTME: HTTP handler for identity provider webhooks
// ABOUTME: Verifies the delivery signature and dispatches user lifecycle events

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/edusphere/portal-gateway/webhook"
)

// maxWebhookBody caps the signed payload read from the provider
const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// IdentityWebhook handles POST /api/v1/webhooks/identity
func (h *Handler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || h.dispatcher == nil {
		h.writeError(w, "Webhook not configured", http.StatusServiceUnavailable)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	event, err := h.verifier.Verify(payload, r.Header)
	switch {
	case errors.Is(err, webhook.ErrMissingHeaders):
		h.writeError(w, "Missing svix headers", http.StatusBadRequest)
		return
	case errors.Is(err, webhook.ErrInvalidPayload):
		slog.Warn("Webhook payload rejected", "error", err)
		h.writeError(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	case err != nil:
		slog.Warn("Webhook signature rejected", "error", err)
		h.writeError(w, "Invalid webhook signature", http.StatusBadRequest)
		return
	}

	outcome, err := h.dispatcher.Dispatch(r.Context(), r.Header.Get(webhook.HeaderID), event)
	if err != nil {
		slog.Error("Webhook dispatch failed", "type", event.Type, "error", err)
		h.writeErrorDetails(w, "Failed to process webhook", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{Received: true, Outcome: string(outcome)})
}
