package ports

import (
	"context"
	"crypto"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// KeySource yields the public key that bearer tokens are signed with.
// Failures wrap domain.ErrKeyUnavailable.
type KeySource interface {
	SigningKey(ctx context.Context) (crypto.PublicKey, error)
}

// TokenVerifier checks a bearer token. Every failure is a *domain.AuthError.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Claims, error)
}

// AuthzCache is the cache-aside layer in front of the role store.
//
// Resolve and Populate never fail: backend errors count as a miss and
// populate errors are logged. Invalidate reports failure so that callers can
// log it, but it has already been attempted when it returns.
type AuthzCache interface {
	Resolve(ctx context.Context, userID string) (*domain.CacheEntry, bool)
	Populate(ctx context.Context, userID string, entry *domain.CacheEntry)
	Invalidate(ctx context.Context, userID string) error
}

// ReplayGuard remembers processed webhook deliveries.
type ReplayGuard interface {
	// FirstSeen marks key and reports whether it was unseen before.
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
