package ports

import (
	"context"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// ProfileRepository persists user profiles.
type ProfileRepository interface {
	// GetProfile returns domain.ErrProfileNotFound when the user has none.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	// EnsureProfile creates the profile when missing. created is false when a
	// profile already existed, including when a concurrent caller won.
	EnsureProfile(ctx context.Context, userID, fullName string) (p *domain.Profile, created bool, err error)
	UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.Profile, error)
}
