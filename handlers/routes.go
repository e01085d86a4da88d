// ABOUTME: Route table for gateway endpoints
// ABOUTME: Combines local endpoints with the declarative proxy routes

package handlers

import (
	"net/http"

	"github.com/edusphere/portal-gateway/config"
)

// Route defines an API endpoint with its HTTP method and handler.
type Route struct {
	Method  string           // HTTP method (GET, POST, etc.)
	Path    string           // URL path (e.g., "/api/v1/health")
	Handler http.HandlerFunc // Handler function
	Strict  bool             // credential endpoints, rate limited more tightly
}

// Pattern is the ServeMux pattern for the route
func (rt Route) Pattern() string {
	return rt.Method + " " + rt.Path
}

// localRoutes are served by the gateway itself. Proxy routes may not
// claim their patterns.
var localRoutes = []struct {
	method, path string
	handle       func(*Handler, http.ResponseWriter, *http.Request)
}{
	{http.MethodGet, "/api/v1/health", (*Handler).Health},
	{http.MethodGet, "/api/v1/features", (*Handler).Features},
	{http.MethodPost, "/api/v1/webhooks/identity", (*Handler).IdentityWebhook},
}

// Routes returns all API routes for registration: local endpoints first,
// then one forwarder per proxy route.
func (h *Handler) Routes() []Route {
	routes := make([]Route, 0, len(localRoutes)+len(h.routes))
	for _, lr := range localRoutes {
		handle := lr.handle
		routes = append(routes, Route{
			Method:  lr.method,
			Path:    lr.path,
			Handler: func(w http.ResponseWriter, r *http.Request) { handle(h, w, r) },
		})
	}

	for _, pr := range h.routes {
		routes = append(routes, Route{
			Method:  pr.Method,
			Path:    pr.Path,
			Handler: h.Proxy(pr),
			Strict:  pr.Upstream == config.UpstreamAuth,
		})
	}
	return routes
}
