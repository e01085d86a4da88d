package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Cleanup(withCleanEnv(t, nil))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.UpstreamTimeout != 0 {
		t.Errorf("Expected no upstream timeout by default, got %s", cfg.UpstreamTimeout)
	}
	if !cfg.RateLimitEnabled {
		t.Error("Expected rate limiting enabled by default")
	}
	if cfg.RateLimitAuth != 10 || cfg.RateLimitDefault != 100 {
		t.Errorf("Unexpected rate limit defaults: auth=%d default=%d", cfg.RateLimitAuth, cfg.RateLimitDefault)
	}
	if cfg.WebhookConfigured() {
		t.Error("Webhook should not be configured without a secret")
	}
	if cfg.RedisConfigured() {
		t.Error("Redis should not be configured without an address")
	}
}

func TestLoadConfig_UpstreamFallbacks(t *testing.T) {
	t.Cleanup(withCleanEnv(t, nil))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := map[string]string{
		UpstreamAuth:         "http://localhost:8001",
		UpstreamUser:         "http://localhost:8002",
		UpstreamAI:           "http://localhost:8003",
		UpstreamDiscussion:   "http://localhost:8004",
		UpstreamLearningPath: "http://localhost:8005",
		UpstreamNotification: "http://localhost:8006",
	}
	for name, url := range want {
		got, ok := cfg.UpstreamURL(name)
		if !ok {
			t.Errorf("Upstream %q not configured", name)
			continue
		}
		if got != url {
			t.Errorf("Upstream %q = %q, want %q", name, got, url)
		}
	}

	if len(cfg.UpstreamNames()) != len(want) {
		t.Errorf("Expected %d upstreams, got %v", len(want), cfg.UpstreamNames())
	}
}

func TestLoadConfig_UpstreamOverride(t *testing.T) {
	t.Cleanup(withCleanEnv(t, map[string]string{
		"AUTH_SERVICE_URL": "auth.internal:9000/",
		"AI_SERVICE_URL":   "https://ai.example.com",
	}))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got, _ := cfg.UpstreamURL(UpstreamAuth); got != "http://auth.internal:9000" {
		t.Errorf("Expected scheme added and trailing slash removed, got %q", got)
	}
	if got, _ := cfg.UpstreamURL(UpstreamAI); got != "https://ai.example.com" {
		t.Errorf("Expected https URL preserved, got %q", got)
	}
}

func TestLoadConfig_InvalidUpstreamScheme(t *testing.T) {
	t.Cleanup(withCleanEnv(t, map[string]string{
		"USER_SERVICE_URL": "ftp://files.example.com",
	}))

	if _, err := Load(); err == nil {
		t.Error("Expected error for ftp upstream, got nil")
	}
}

func TestLoadConfig_RateLimitBounds(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"zero", "0", true},
		{"min", "1", false},
		{"max", "10000", false},
		{"over max", "10001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(withCleanEnv(t, map[string]string{"RATE_LIMIT_AUTH": tt.value}))

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("RATE_LIMIT_AUTH=%s: error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_Durations(t *testing.T) {
	t.Cleanup(withCleanEnv(t, map[string]string{
		"UPSTREAM_TIMEOUT":   "15s",
		"WEBHOOK_REPLAY_TTL": "60",
	}))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.UpstreamTimeout != 15*time.Second {
		t.Errorf("UpstreamTimeout = %s, want 15s", cfg.UpstreamTimeout)
	}
	if cfg.WebhookReplayTTL != time.Minute {
		t.Errorf("WebhookReplayTTL = %s, want 1m", cfg.WebhookReplayTTL)
	}
}

func TestLoadConfig_WebhookSecretFormat(t *testing.T) {
	t.Cleanup(withCleanEnv(t, map[string]string{"WEBHOOK_SIGNING_SECRET": "not-a-secret"}))

	if _, err := Load(); err == nil {
		t.Error("Expected error for secret without whsec_ prefix")
	}

	os.Setenv("WEBHOOK_SIGNING_SECRET", "whsec_c2VjcmV0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !cfg.WebhookConfigured() {
		t.Error("Expected webhook configured")
	}
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	t.Cleanup(withCleanEnv(t, map[string]string{"PORT": "9090"}))

	path := filepath.Join(t.TempDir(), "test.env")
	content := "PORT=7070\nNOTIFICATION_SERVICE_URL=http://notify:8106\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	os.Setenv("DOTENV_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Existing env var should win over .env, got port %s", cfg.Port)
	}
	if got, _ := cfg.UpstreamURL(UpstreamNotification); got != "http://notify:8106" {
		t.Errorf("Expected upstream from .env, got %q", got)
	}
}

func TestGetEnvStringList(t *testing.T) {
	t.Cleanup(withCleanEnv(t, map[string]string{
		"CORS_ALLOWED_ORIGINS": " https://a.example.com, ,https://b.example.com ",
	}))

	got := getEnvStringList("CORS_ALLOWED_ORIGINS")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Errorf("getEnvStringList = %v", got)
	}
	if getEnvStringList("MISSING") != nil {
		t.Error("Expected nil for unset variable")
	}
}
