// ABOUTME: Configuration loader for the portal gateway
// ABOUTME: Loads settings from .env and environment variables with defaults

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Upstream service names used by the proxy route table
const (
	UpstreamAuth         = "auth"
	UpstreamUser         = "user"
	UpstreamAI           = "ai"
	UpstreamDiscussion   = "discussion"
	UpstreamLearningPath = "learning-path"
	UpstreamNotification = "notification"
)

// upstreamDefaults maps each upstream to its environment variable and the
// literal fallback used when the variable is unset.
var upstreamDefaults = []struct {
	name     string
	envVar   string
	fallback string
}{
	{UpstreamAuth, "AUTH_SERVICE_URL", "http://localhost:8001"},
	{UpstreamUser, "USER_SERVICE_URL", "http://localhost:8002"},
	{UpstreamAI, "AI_SERVICE_URL", "http://localhost:8003"},
	{UpstreamDiscussion, "DISCUSSION_SERVICE_URL", "http://localhost:8004"},
	{UpstreamLearningPath, "LEARNING_PATH_SERVICE_URL", "http://localhost:8005"},
	{UpstreamNotification, "NOTIFICATION_SERVICE_URL", "http://localhost:8006"},
}

type Config struct {
	// Server
	Port               string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string // allowed CORS origins (empty = block all cross-origin)

	// Rate Limiting
	RateLimitEnabled bool // Enable rate limiting (default: true)
	RateLimitAuth    int  // Requests per minute for auth endpoints (default: 10)
	RateLimitDefault int  // Requests per minute for all other endpoints (default: 100)

	// Upstreams, resolved once at startup
	Upstreams                 map[string]string
	UpstreamTimeout           time.Duration // zero means no client timeout
	UpstreamSkipSSLValidation bool
	UpstreamAllProxy          string // ssh+socks5://user@host:port?private-key=/path
	UserServiceToken          string // service credential for webhook user sync

	// Declarative tables (empty = embedded defaults)
	ProxyRoutesFile  string
	FeatureFlagsFile string

	// Identity provider webhook
	WebhookSigningSecret string
	WebhookReplayTTL     time.Duration

	// Redis (optional, shared session storage)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// UpstreamURL returns the base URL configured for the named upstream
func (c *Config) UpstreamURL(name string) (string, bool) {
	u, ok := c.Upstreams[name]
	return u, ok
}

// UpstreamNames returns the configured upstream names in sorted order
func (c *Config) UpstreamNames() []string {
	names := make([]string, 0, len(c.Upstreams))
	for name := range c.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WebhookConfigured returns true if a webhook signing secret is set
func (c *Config) WebhookConfigured() bool {
	return c.WebhookSigningSecret != ""
}

// RedisConfigured returns true if a Redis address is set
func (c *Config) RedisConfigured() bool {
	return c.RedisAddr != ""
}

// Load reads an optional .env file (DOTENV_FILE, default ".env") and then
// builds the configuration from the environment. Variables already present
// in the environment take precedence over the file.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSAllowedOrigins: getEnvStringList("CORS_ALLOWED_ORIGINS"),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitAuth:    getEnvInt("RATE_LIMIT_AUTH", 10),
		RateLimitDefault: getEnvInt("RATE_LIMIT_DEFAULT", 100),

		Upstreams:                 make(map[string]string, len(upstreamDefaults)),
		UpstreamTimeout:           getEnvDuration("UPSTREAM_TIMEOUT", 0),
		UpstreamSkipSSLValidation: getEnvBool("UPSTREAM_SKIP_SSL_VALIDATION", false),
		UpstreamAllProxy:          os.Getenv("UPSTREAM_ALL_PROXY"),
		UserServiceToken:          os.Getenv("USER_SERVICE_TOKEN"),

		ProxyRoutesFile:  os.Getenv("PROXY_ROUTES_FILE"),
		FeatureFlagsFile: os.Getenv("FEATURE_FLAGS_FILE"),

		WebhookSigningSecret: os.Getenv("WEBHOOK_SIGNING_SECRET"),
		WebhookReplayTTL:     getEnvDuration("WEBHOOK_REPLAY_TTL", 24*time.Hour),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}

	for _, u := range upstreamDefaults {
		base := normalizeBaseURL(getEnv(u.envVar, u.fallback))
		if err := validateBaseURL(base); err != nil {
			return nil, fmt.Errorf("%s: %w", u.envVar, err)
		}
		cfg.Upstreams[u.name] = base
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
	}

	// Validate rate limit values
	for _, rl := range []struct {
		name  string
		value int
	}{
		{"RATE_LIMIT_AUTH", cfg.RateLimitAuth},
		{"RATE_LIMIT_DEFAULT", cfg.RateLimitDefault},
	} {
		if rl.value < 1 || rl.value > 10000 {
			return nil, fmt.Errorf("%s must be between 1 and 10000, got %d", rl.name, rl.value)
		}
	}

	if cfg.UpstreamTimeout < 0 {
		return nil, fmt.Errorf("UPSTREAM_TIMEOUT must not be negative, got %s", cfg.UpstreamTimeout)
	}

	if cfg.WebhookSigningSecret != "" && !strings.HasPrefix(cfg.WebhookSigningSecret, "whsec_") {
		return nil, fmt.Errorf("WEBHOOK_SIGNING_SECRET must start with whsec_")
	}

	return cfg, nil
}

// LoadDotEnv loads the file named by DOTENV_FILE (default .env) into the
// environment. Call it before anything else reads the environment.
func LoadDotEnv() error {
	return loadDotEnv(getEnv("DOTENV_FILE", ".env"))
}

// loadDotEnv loads path into the environment without overriding existing
// variables. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug("Loaded environment file", "path", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvStringList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// normalizeBaseURL adds http:// if the URL has no scheme and drops any
// trailing slash so route suffixes can be appended directly
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
