package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

type identityService struct {
	verifier ports.TokenVerifier
	cache    ports.AuthzCache
	roles    ports.RoleRepository
	prov     *provisioner
	log      zerolog.Logger
}

// NewIdentityService returns the resolver that backs every authenticated route.
func NewIdentityService(
	verifier ports.TokenVerifier,
	cache ports.AuthzCache,
	roles ports.RoleRepository,
	profiles ports.ProfileRepository,
	audit ports.AuditRepository,
	log zerolog.Logger,
) ports.IdentityService {
	return &identityService{
		verifier: verifier,
		cache:    cache,
		roles:    roles,
		prov:     &provisioner{roles: roles, profiles: profiles, audit: audit, log: log},
		log:      log,
	}
}

// Resolve verifies the token, then serves roles from the cache or, on a miss,
// from the store. A user seen for the first time gets a profile and the
// default primary role.
func (s *identityService) Resolve(ctx context.Context, token string) (_ *domain.Identity, err error) {
	start := time.Now()
	source := "store"
	defer func() {
		if err != nil {
			source = "rejected"
		}
		metrics.IdentityResolutionDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(token) == "" {
		return nil, domain.NewAuthError(domain.AuthNoToken, nil)
	}

	// 1. Verify.
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	identity := &domain.Identity{UserID: claims.Subject, Email: claims.Email}

	// 2. Cache.
	if entry, ok := s.cache.Resolve(ctx, claims.Subject); ok {
		source = "cache"
		identity.Roles = entry.Roles
		identity.Profile = entry.Profile
		return identity, nil
	}

	// 3. Store, with lazy provisioning.
	entry, err := s.load(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	// 4. Populate only on a complete resolution for a caller still waiting.
	if ctx.Err() == nil {
		s.cache.Populate(ctx, claims.Subject, entry)
	}

	identity.Roles = entry.Roles
	identity.Profile = entry.Profile
	return identity, nil
}

func (s *identityService) load(ctx context.Context, claims *domain.Claims) (*domain.CacheEntry, error) {
	prov, err := s.prov.provision(ctx, claims.Subject, domain.DefaultFullName("", claims.Email), sourceDefault, domain.RequestMeta{})
	if err != nil {
		return nil, err
	}

	assignments, err := s.roles.ListRoles(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	return &domain.CacheEntry{
		Roles:   domain.RoleNames(assignments),
		Profile: prov.profile.Snapshot(),
	}, nil
}

// Me reads the assignment rows straight from the store so the response
// carries assignment metadata the cache does not hold.
func (s *identityService) Me(ctx context.Context, id *domain.Identity) (*ports.MeView, error) {
	assignments, err := s.roles.ListRoles(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("me: list roles: %w", err)
	}
	if len(assignments) == 0 {
		return nil, domain.ErrNoRoles
	}

	return &ports.MeView{
		UserID:  id.UserID,
		Email:   id.Email,
		Roles:   assignments,
		Profile: id.Profile,
	}, nil
}
