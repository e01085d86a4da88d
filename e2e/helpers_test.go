// ABOUTME: Test helpers for e2e tests
// ABOUTME: Runs fake auth and user services behind a gateway built from the production router

package e2e

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edusphere/portal-gateway/cache"
	"github.com/edusphere/portal-gateway/config"
	"github.com/edusphere/portal-gateway/features"
	"github.com/edusphere/portal-gateway/handlers"
	"github.com/edusphere/portal-gateway/models"
	"github.com/edusphere/portal-gateway/services"
	"github.com/edusphere/portal-gateway/webhook"
)

var testSigningSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("e2e-signing-key"))

// fakeBackend plays the auth and user services. Tokens are opaque strings
// of the form "token-<n>"; refresh hands out the next one.
type fakeBackend struct {
	mu           sync.Mutex
	issued       int
	refreshFails bool
	users        map[string]models.User // keyed by external id
	requests     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{users: make(map[string]models.User)}
}

func (b *fakeBackend) nextToken() string {
	b.issued++
	return "token-" + strconv.Itoa(b.issued)
}

func (b *fakeBackend) setRefreshFails(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFails = fail
}

func (b *fakeBackend) user(externalID string) (models.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[externalID]
	return u, ok
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		var req models.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}
		json.NewEncoder(w).Encode(models.LoginResponse{
			Token: b.nextToken(),
			User:  &models.User{ID: "u-1", Email: req.Email, Name: "Ada", Role: models.RoleTeacher},
		})

	case r.Method == http.MethodPost && r.URL.Path == "/auth/refresh-token":
		if b.refreshFails || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Token expired"}`))
			return
		}
		json.NewEncoder(w).Encode(models.RefreshResponse{Token: b.nextToken()})

	case r.Method == http.MethodGet && r.URL.Path == "/users/u-1":
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		json.NewEncoder(w).Encode(models.User{ID: "u-1", Email: "ada@example.com", Name: "Ada L.", Role: models.RoleTeacher})

	case r.Method == http.MethodPost && r.URL.Path == "/users":
		var req services.SyncUserRequest
		json.NewDecoder(r.Body).Decode(&req)
		u := models.User{ID: "p-" + req.ExternalID, Email: req.Email, Name: req.Name, Role: req.Role}
		b.users[req.ExternalID] = u
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(u)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/users/external/"):
		delete(b.users, strings.TrimPrefix(r.URL.Path, "/users/external/"))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}`))
	}
}

// gatewayOptions tweaks the config before the gateway is built
type gatewayOptions func(cfg *config.Config)

// startGateway wires the gateway the way main does, with every upstream
// pointed at backend. Unreachable upstreams can be set via opts.
func startGateway(t *testing.T, backend http.Handler, opts ...gatewayOptions) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Upstreams: map[string]string{
			config.UpstreamAuth:         upstream.URL,
			config.UpstreamUser:         upstream.URL,
			config.UpstreamAI:           upstream.URL,
			config.UpstreamDiscussion:   upstream.URL,
			config.UpstreamLearningPath: upstream.URL,
			config.UpstreamNotification: upstream.URL,
		},
		RateLimitAuth:        10,
		RateLimitDefault:     100,
		WebhookSigningSecret: testSigningSecret,
		WebhookReplayTTL:     time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := services.NewUpstreamHTTPClient(cfg)
	if err != nil {
		t.Fatalf("NewUpstreamHTTPClient: %v", err)
	}
	routes, err := handlers.LoadProxyRoutes(cfg.ProxyRoutesFile, cfg.UpstreamNames())
	if err != nil {
		t.Fatalf("LoadProxyRoutes: %v", err)
	}
	flags, err := features.Load(cfg.FeatureFlagsFile)
	if err != nil {
		t.Fatalf("features.Load: %v", err)
	}

	h := handlers.NewHandler(cfg, client, routes)
	h.SetFeatures(flags)

	verifier, err := webhook.NewSvixVerifier(cfg.WebhookSigningSecret)
	if err != nil {
		t.Fatalf("NewSvixVerifier: %v", err)
	}
	seen := cache.New[struct{}](cfg.WebhookReplayTTL)
	t.Cleanup(seen.Close)
	userURL, _ := cfg.UpstreamURL(config.UpstreamUser)
	users := services.NewUserClient(userURL, "svc-token", client)
	h.SetWebhook(verifier, webhook.NewDispatcher(users, webhook.NewMemoryReplayGuard(seen)))

	gateway := httptest.NewServer(handlers.NewRouter(h, cfg))
	t.Cleanup(gateway.Close)
	return gateway
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	return body
}
