// Package retry wraps connection establishment in bounded exponential backoff.
// Steady-state operations are never retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Policy bounds a retry loop. Attempts counts the first try.
type Policy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// DefaultPolicy is three attempts waiting between one and ten seconds.
var DefaultPolicy = Policy{Attempts: 3, MinWait: time.Second, MaxWait: 10 * time.Second}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.MinWait <= 0 {
		p.MinWait = DefaultPolicy.MinWait
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = p.MinWait
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinWait
	b.MaxInterval = p.MaxWait
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx)
}

// Connect runs op until it succeeds, the attempts run out or ctx ends.
// what names the dependency in log lines.
func Connect(ctx context.Context, p Policy, log zerolog.Logger, what string, op func(ctx context.Context) error) error {
	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(ctx)
		},
		p.backOff(ctx),
		func(err error, wait time.Duration) {
			log.Warn().Err(err).
				Str("dependency", what).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Msg("connection failed, retrying")
		},
	)
}
