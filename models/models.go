// ABOUTME: Shared API response models for the gateway
// ABOUTME: JSON-serializable envelopes returned to browser and CLI callers

package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse reports gateway status and the configured upstreams
type HealthResponse struct {
	Status    string            `json:"status"`
	Upstreams map[string]string `json:"upstreams"`
	Routes    int               `json:"routes"`
}
