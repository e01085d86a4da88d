// ABOUTME: Opens the persisted CLI session backed by disk or Redis
// ABOUTME: Every session-aware command restores through here before acting

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/edusphere/portal-gateway/cli/internal/client"
	"github.com/edusphere/portal-gateway/session"
)

// cliSession bundles the restored store with the client it refreshes through
type cliSession struct {
	store  *session.Store
	client *client.Client
	close  func()
}

// openSession builds the storage backend and restores the last session.
// A restore that outlives the watchdog leaves the session unauthenticated.
func openSession(ctx context.Context) (*cliSession, error) {
	c := client.New(GetAPIURL())

	storage, closeFn, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}

	store := session.New(storage, c.Auth())
	if !store.RestoreWithWatchdog(ctx, session.DefaultRestoreTimeout) {
		slog.Warn("Session restore timed out")
	}

	return &cliSession{store: store, client: c, close: closeFn}, nil
}

func openStorage(ctx context.Context) (session.Storage, func(), error) {
	addr := os.Getenv("EDUPORTAL_REDIS_ADDR")
	if addr == "" {
		dir := GetSessionDir()
		slog.Debug("Using file session storage", "dir", dir)
		return session.NewFileStorage(dir), func() {}, nil
	}

	db, _ := strconv.Atoi(os.Getenv("EDUPORTAL_REDIS_DB"))
	rdb, err := session.DialRedis(ctx, addr, os.Getenv("EDUPORTAL_REDIS_PASSWORD"), db)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("Using redis session storage", "addr", addr)
	return session.NewRedisStorage(rdb, "", 0), func() { rdb.Close() }, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
