// ABOUTME: Replay protection for webhook deliveries
// ABOUTME: Remembers delivery ids in memory or in Redis for a fixed window

package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edusphere/portal-gateway/cache"
)

// ReplayGuard records delivery ids that have already been applied.
// Claim returns true the first time an id is seen within the window.
type ReplayGuard interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type memoryGuard struct {
	seen *cache.Cache[struct{}]
}

// NewMemoryReplayGuard keeps ids in c for its default TTL. Suitable for a
// single gateway instance.
func NewMemoryReplayGuard(c *cache.Cache[struct{}]) ReplayGuard {
	return &memoryGuard{seen: c}
}

func (g *memoryGuard) Claim(_ context.Context, id string) (bool, error) {
	return g.seen.Claim(id, struct{}{}), nil
}

func (g *memoryGuard) Release(_ context.Context, id string) error {
	g.seen.Clear(id)
	return nil
}

type redisGuard struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisReplayGuard shares seen ids between gateway instances
func NewRedisReplayGuard(rdb redis.Cmdable, prefix string, ttl time.Duration) ReplayGuard {
	if prefix == "" {
		prefix = "eduportal:webhook:"
	}
	return &redisGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (g *redisGuard) Claim(ctx context.Context, id string) (bool, error) {
	return g.rdb.SetNX(ctx, g.prefix+id, 1, g.ttl).Result()
}

func (g *redisGuard) Release(ctx context.Context, id string) error {
	return g.rdb.Del(ctx, g.prefix+id).Err()
}
