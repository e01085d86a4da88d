// ABOUTME: Declarative proxy route table loaded from YAML
// ABOUTME: Validates each route and resolves upstream URLs from inbound requests

package handlers

import (
	_ "embed"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed proxy_routes.yaml
var defaultProxyRoutes []byte

// ProxyRoute forwards one local method+path to one upstream endpoint
type ProxyRoute struct {
	Name           string `yaml:"name"`
	Method         string `yaml:"method"`
	Path           string `yaml:"path"`
	Upstream       string `yaml:"upstream"`
	UpstreamPath   string `yaml:"upstream_path"`
	Public         bool   `yaml:"public"`
	FailureStatus  int    `yaml:"failure_status"`
	FailureMessage string `yaml:"failure_message"`
}

type proxyRouteFile struct {
	Routes []ProxyRoute `yaml:"routes"`
}

var (
	pathParamPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	proxyMethods = []string{
		http.MethodGet, http.MethodHead, http.MethodPost,
		http.MethodPut, http.MethodPatch, http.MethodDelete,
	}
)

// LoadProxyRoutes reads the route table from path, or the embedded table
// when path is empty. upstreams lists the names routes may target.
func LoadProxyRoutes(path string, upstreams []string) ([]ProxyRoute, error) {
	data := defaultProxyRoutes
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy routes: %w", err)
		}
	}
	return ParseProxyRoutes(data, upstreams)
}

// ParseProxyRoutes decodes and validates a YAML route table. Defaults are
// applied for failure_status (500) and failure_message.
func ParseProxyRoutes(data []byte, upstreams []string) ([]ProxyRoute, error) {
	var file proxyRouteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse proxy routes: %w", err)
	}
	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("proxy route table is empty")
	}

	seen := make(map[string]string, len(file.Routes)+len(localRoutes))
	scratch := http.NewServeMux()
	for _, lr := range localRoutes {
		pattern := lr.method + " " + lr.path
		seen[pattern] = "the gateway"
		scratch.HandleFunc(pattern, http.NotFound)
	}

	routes := make([]ProxyRoute, 0, len(file.Routes))
	for i, route := range file.Routes {
		route.Method = strings.ToUpper(route.Method)
		if route.FailureStatus == 0 {
			route.FailureStatus = http.StatusInternalServerError
		}
		if route.FailureMessage == "" {
			route.FailureMessage = "Failed to reach upstream service"
		}

		if err := route.validate(upstreams); err != nil {
			if route.Name == "" {
				return nil, fmt.Errorf("route %d: %w", i, err)
			}
			return nil, fmt.Errorf("route %q: %w", route.Name, err)
		}

		key := route.Method + " " + route.Path
		if other, dup := seen[key]; dup {
			return nil, fmt.Errorf("route %q: %s already defined by %q", route.Name, key, other)
		}
		if err := registerPattern(scratch, key); err != nil {
			return nil, fmt.Errorf("route %q: %w", route.Name, err)
		}
		seen[key] = route.Name
		routes = append(routes, route)
	}
	return routes, nil
}

// registerPattern adds pattern to mux, turning the ServeMux panic for a
// malformed or conflicting pattern into an error.
func registerPattern(mux *http.ServeMux, pattern string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid path pattern: %v", r)
		}
	}()
	mux.HandleFunc(pattern, http.NotFound)
	return nil
}

func (r ProxyRoute) validate(upstreams []string) error {
	switch {
	case r.Name == "":
		return fmt.Errorf("name is required")
	case !slices.Contains(proxyMethods, r.Method):
		return fmt.Errorf("unsupported method %q", r.Method)
	case !strings.HasPrefix(r.Path, "/api/v1/"):
		return fmt.Errorf("path %q must start with /api/v1/", r.Path)
	case !slices.Contains(upstreams, r.Upstream):
		return fmt.Errorf("unknown upstream %q", r.Upstream)
	case !strings.HasPrefix(r.UpstreamPath, "/"):
		return fmt.Errorf("upstream_path %q must start with /", r.UpstreamPath)
	case r.FailureStatus != http.StatusInternalServerError && r.FailureStatus != http.StatusBadGateway:
		return fmt.Errorf("failure_status must be 500 or 502, got %d", r.FailureStatus)
	}

	params := r.pathParams()
	for _, m := range pathParamPattern.FindAllStringSubmatch(r.UpstreamPath, -1) {
		if !slices.Contains(params, m[1]) {
			return fmt.Errorf("upstream_path uses {%s} which path does not define", m[1])
		}
	}
	return nil
}

func (r ProxyRoute) pathParams() []string {
	var names []string
	for _, m := range pathParamPattern.FindAllStringSubmatch(r.Path, -1) {
		names = append(names, m[1])
	}
	return names
}

// Pattern is the ServeMux pattern for the route
func (r ProxyRoute) Pattern() string {
	return r.Method + " " + r.Path
}

// upstreamURL joins base with the route's upstream path, substituting path
// values from req and keeping its query string
func (r ProxyRoute) upstreamURL(base string, req *http.Request) string {
	path := pathParamPattern.ReplaceAllStringFunc(r.UpstreamPath, func(m string) string {
		return url.PathEscape(req.PathValue(m[1 : len(m)-1]))
	})
	target := base + path
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	return target
}
