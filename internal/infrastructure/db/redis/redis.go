package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/pkg/retry"
)

const defaultTimeout = 5 * time.Second

// Config captures the settings for establishing a Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
	Retry    retry.Policy
}

// NewClient builds a client without touching the network. go-redis dials
// lazily, so the client recovers on its own once Redis becomes reachable.
func NewClient(cfg Config) *redis.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

// Connect builds a client and validates connectivity with a ping retried
// under cfg.Retry. The client is closed when every attempt fails.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*redis.Client, error) {
	client := NewClient(cfg)
	timeout := client.Options().DialTimeout

	err := retry.Connect(ctx, cfg.Retry, log, "redis", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
