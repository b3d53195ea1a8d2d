package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Attempts: 3, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func TestConnect_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Connect(context.Background(), fast, zerolog.Nop(), "db", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestConnect_BoundedAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("connection refused")
	err := Connect(context.Background(), fast, zerolog.Nop(), "db", func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestConnect_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Connect(ctx, Policy{Attempts: 10, MinWait: 50 * time.Millisecond, MaxWait: time.Second}, zerolog.Nop(), "db", func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
