// ABOUTME: Entry point for the education portal API gateway
// ABOUTME: Proxies browser and CLI calls to the platform microservices

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edusphere/portal-gateway/cache"
	"github.com/edusphere/portal-gateway/config"
	"github.com/edusphere/portal-gateway/features"
	"github.com/edusphere/portal-gateway/handlers"
	"github.com/edusphere/portal-gateway/logger"
	"github.com/edusphere/portal-gateway/services"
	"github.com/edusphere/portal-gateway/session"
	"github.com/edusphere/portal-gateway/webhook"
)

func main() {
	cfg, err := setup()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Gateway failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the environment file before initializing structured logging,
// so LOG_LEVEL and LOG_FORMAT set there take effect, then reads the config.
func setup() (*config.Config, error) {
	dotenvErr := config.LoadDotEnv()
	logger.Init()
	if dotenvErr != nil {
		return nil, dotenvErr
	}
	return config.Load()
}

func run(cfg *config.Config) error {
	slog.Info("Starting portal gateway")
	for _, name := range cfg.UpstreamNames() {
		url, _ := cfg.UpstreamURL(name)
		slog.Info("Upstream configured", "name", name, "url", url)
	}

	client, err := services.NewUpstreamHTTPClient(cfg)
	if err != nil {
		return err
	}
	if cfg.UpstreamAllProxy != "" {
		slog.Info("Upstream traffic tunnelled through SOCKS5 proxy")
	}

	routes, err := handlers.LoadProxyRoutes(cfg.ProxyRoutesFile, cfg.UpstreamNames())
	if err != nil {
		return err
	}
	slog.Info("Proxy routes loaded", "count", len(routes), "file", cfg.ProxyRoutesFile)

	flags, err := features.Load(cfg.FeatureFlagsFile)
	if err != nil {
		return err
	}

	h := handlers.NewHandler(cfg, client, routes)
	h.SetFeatures(flags)

	if cfg.WebhookConfigured() {
		verifier, err := webhook.NewSvixVerifier(cfg.WebhookSigningSecret)
		if err != nil {
			return err
		}
		guard, closeGuard, err := newReplayGuard(cfg)
		if err != nil {
			return err
		}
		defer closeGuard()

		userURL, _ := cfg.UpstreamURL(config.UpstreamUser)
		users := services.NewUserClient(userURL, cfg.UserServiceToken, client)
		h.SetWebhook(verifier, webhook.NewDispatcher(users, guard))
		slog.Info("Identity webhook enabled")
	} else {
		slog.Warn("WEBHOOK_SIGNING_SECRET not set, identity webhook disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(h, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newReplayGuard shares webhook delivery ids through Redis when configured,
// otherwise keeps them in process memory.
func newReplayGuard(cfg *config.Config) (webhook.ReplayGuard, func(), error) {
	if cfg.RedisConfigured() {
		rdb, err := session.DialRedis(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Webhook replay guard using Redis", "addr", cfg.RedisAddr)
		return webhook.NewRedisReplayGuard(rdb, "", cfg.WebhookReplayTTL), func() { rdb.Close() }, nil
	}

	seen := cache.New[struct{}](cfg.WebhookReplayTTL)
	return webhook.NewMemoryReplayGuard(seen), seen.Close, nil
}
