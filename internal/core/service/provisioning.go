package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

// Assignment sources recorded in role.assigned metadata.
const (
	sourceAdmin   = "admin"
	sourceDefault = "default"
	sourceWebhook = "webhook"
)

// invalidateTimeout bounds the cache invalidation that follows a committed
// mutation. It runs detached from the request context so a client hanging up
// after the commit cannot leave a stale entry behind.
const invalidateTimeout = 2 * time.Second

// provisioner creates the records every user needs: a profile and the
// default primary role. Both steps are idempotent.
type provisioner struct {
	roles    ports.RoleRepository
	profiles ports.ProfileRepository
	audit    ports.AuditRepository
	log      zerolog.Logger
}

// provisioned reports what provision created.
type provisioned struct {
	profile        *domain.Profile
	profileCreated bool
	roleCreated    bool
}

// provision makes a first-seen user known. A user is first seen while no
// profile exists for it: the default primary role is assigned, then the
// profile is created. Users that already have a profile are left alone, so a
// revoked role stays revoked.
//
// The role goes first so that a concurrent request which finds the profile
// also finds the role. When profile creation fails the next call repeats both
// steps and the idempotent assign reports AlreadyExists.
func (p *provisioner) provision(ctx context.Context, userID, fullName, source string, meta domain.RequestMeta) (provisioned, error) {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err == nil {
		return provisioned{profile: profile}, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return provisioned{}, fmt.Errorf("get profile: %w", err)
	}

	res, err := p.roles.Assign(ctx, ports.AssignRoleParams{
		UserID:    userID,
		Role:      domain.DefaultRole,
		IsPrimary: true,
		Source:    source,
		Meta:      meta,
	})
	if err != nil {
		return provisioned{}, fmt.Errorf("assign default role: %w", err)
	}
	if res.Changed() {
		p.log.Info().Str("user_id", userID).Str("source", source).Msg("default role assigned")
	}

	profile, created, err := p.ensureProfile(ctx, userID, fullName, meta)
	if err != nil {
		return provisioned{}, err
	}
	return provisioned{profile: profile, profileCreated: created, roleCreated: res.Changed()}, nil
}

// ensureProfile creates the profile when missing. The profile.created event
// is best effort: it is not a role mutation.
func (p *provisioner) ensureProfile(ctx context.Context, userID, fullName string, meta domain.RequestMeta) (*domain.Profile, bool, error) {
	profile, created, err := p.profiles.EnsureProfile(ctx, userID, fullName)
	if err != nil {
		return nil, false, fmt.Errorf("ensure profile: %w", err)
	}
	if created {
		actor := userID
		ev := domain.NewAuditEvent(domain.EventProfileCreated, &actor, map[string]any{"full_name": profile.FullName}, meta)
		if _, err := p.audit.Record(ctx, ev); err != nil {
			p.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record profile creation")
		}
	}
	return profile, created, nil
}

// invalidate drops the user's cache entry. Failure is logged: the mutation is
// already committed and the entry TTL bounds the damage.
func invalidate(ctx context.Context, cache ports.AuthzCache, log zerolog.Logger, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	if err := cache.Invalidate(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("authorization cache invalidation failed")
	}
}

func optionalActor(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
