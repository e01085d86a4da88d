package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edusphere/portal-gateway/config"
)

// testConfig points every upstream at base
func testConfig(base string) *config.Config {
	return &config.Config{
		Upstreams: map[string]string{
			config.UpstreamAuth:         base,
			config.UpstreamUser:         base,
			config.UpstreamAI:           base,
			config.UpstreamDiscussion:   base,
			config.UpstreamLearningPath: base,
			config.UpstreamNotification: base,
		},
	}
}

// newTestMux builds the production router; testConfig leaves rate limits off
func newTestMux(h *Handler) *http.ServeMux {
	return NewRouter(h, h.cfg)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v (body %q)", err, rec.Body.String())
	}
	return body
}
