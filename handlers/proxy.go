// ABOUTME: Generic upstream forwarder for proxy routes
// ABOUTME: Checks the bearer header, forwards once and relays the upstream JSON reply

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/edusphere/portal-gateway/middleware"
)

// maxUpstreamBody caps how much of an upstream reply is buffered
const maxUpstreamBody = 10 << 20

// forwardedHeaders are copied verbatim from the inbound request
var forwardedHeaders = []string{"Authorization", "Content-Type", "Accept-Language"}

// Proxy returns the forwarder for route. Upstream replies are relayed with
// their own status code, including 4xx and 5xx. Only a failure to reach the
// upstream produces the route's failure status.
func (h *Handler) Proxy(route ProxyRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !route.Public && r.Header.Get("Authorization") == "" {
			slog.Debug("Proxy rejected: no authorization header", "route", route.Name)
			h.writeError(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		base, ok := h.cfg.UpstreamURL(route.Upstream)
		if !ok {
			slog.Error("Proxy route targets unconfigured upstream", "route", route.Name, "upstream", route.Upstream)
			h.writeError(w, "Server configuration error", http.StatusInternalServerError)
			return
		}
		target := route.upstreamURL(base, r)

		var body io.Reader
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			body = r.Body
		}

		req, err := http.NewRequestWithContext(r.Context(), route.Method, target, body)
		if err != nil {
			slog.Error("Proxy: failed to create request", "route", route.Name, "error", err)
			h.writeErrorDetails(w, route.FailureMessage, err.Error(), route.FailureStatus)
			return
		}
		if body != nil {
			req.ContentLength = r.ContentLength
		}
		for _, name := range forwardedHeaders {
			if v := r.Header.Get(name); v != "" {
				req.Header.Set(name, v)
			}
		}
		if id := middleware.RequestID(r); id != "" {
			req.Header.Set("X-Request-ID", id)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			slog.Error("Proxy: upstream unreachable", "route", route.Name, "upstream", route.Upstream, "error", err)
			h.writeErrorDetails(w, route.FailureMessage, err.Error(), route.FailureStatus)
			return
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody+1))
		if err != nil {
			slog.Error("Proxy: upstream response interrupted", "route", route.Name, "error", err)
			h.writeErrorDetails(w, route.FailureMessage, err.Error(), route.FailureStatus)
			return
		}
		if len(data) > maxUpstreamBody {
			slog.Error("Proxy: upstream response too large", "route", route.Name, "status", resp.StatusCode, "limit", maxUpstreamBody)
			h.writeErrorDetails(w, "Upstream response too large",
				fmt.Sprintf("%s responded with more than %d bytes", route.Upstream, maxUpstreamBody),
				http.StatusBadGateway)
			return
		}

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		if !json.Valid(data) {
			slog.Error("Proxy: upstream returned invalid JSON", "route", route.Name, "status", resp.StatusCode)
			h.writeErrorDetails(w, "Invalid response from upstream service",
				fmt.Sprintf("%s responded %d with a body that is not JSON", route.Upstream, resp.StatusCode),
				http.StatusInternalServerError)
			return
		}

		slog.Debug("Proxy: relayed upstream response", "route", route.Name, "status", resp.StatusCode)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if bodyAllowed(resp.StatusCode) {
			w.Write(data)
		}
	}
}

func bodyAllowed(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified
}
