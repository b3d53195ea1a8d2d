package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultReplayTTL = 24 * time.Hour

// ReplayGuard remembers processed webhook deliveries.
// Key format: webhook:<delivery_key>
type ReplayGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewReplayGuard wraps client. A non-positive ttl selects 24 hours.
func NewReplayGuard(client redis.Cmdable, ttl time.Duration) *ReplayGuard {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &ReplayGuard{client: client, ttl: ttl}
}

// FirstSeen atomically marks key and reports whether it was new.
func (g *ReplayGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay check: %w", err)
	}
	return ok, nil
}

// Forget removes the mark so a later delivery is processed again.
func (g *ReplayGuard) Forget(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.key(key)).Err()
}

func (g *ReplayGuard) key(key string) string {
	return "webhook:" + key
}
