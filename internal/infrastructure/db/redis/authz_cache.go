package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

const defaultAuthzTTL = 15 * time.Minute

// AuthzCache stores resolved roles and a profile snapshot per user.
// Key format: user:<user_id>:roles
//
// The cache is an optimisation only. Read and write failures are logged and
// absorbed, so a Redis outage degrades every lookup to a miss.
type AuthzCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

// NewAuthzCache wraps client. A non-positive ttl selects 15 minutes.
func NewAuthzCache(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *AuthzCache {
	if ttl <= 0 {
		ttl = defaultAuthzTTL
	}
	return &AuthzCache{client: client, ttl: ttl, log: log.With().Str("component", "authz_cache").Logger()}
}

func (c *AuthzCache) Resolve(ctx context.Context, userID string) (*domain.CacheEntry, bool) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.AuthzCacheRequestsTotal.WithLabelValues("miss").Inc()
			return nil, false
		}
		metrics.AuthzCacheRequestsTotal.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache read failed, falling through to store")
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		metrics.AuthzCacheRequestsTotal.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Str("user_id", userID).Msg("corrupt cache entry, treating as miss")
		return nil, false
	}

	metrics.AuthzCacheRequestsTotal.WithLabelValues("hit").Inc()
	return &entry, true
}

func (c *AuthzCache) Populate(ctx context.Context, userID string, entry *domain.CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache entry encode failed")
		return
	}
	if err := c.client.Set(ctx, c.key(userID), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache populate failed")
	}
}

// Invalidate deletes the user's entry. Deleting a missing key is a success.
func (c *AuthzCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		metrics.AuthzCacheInvalidationErrorsTotal.Inc()
		return fmt.Errorf("invalidate %s: %w", userID, err)
	}
	return nil
}

func (c *AuthzCache) key(userID string) string {
	return fmt.Sprintf("user:%s:roles", userID)
}
