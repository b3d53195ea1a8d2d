package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

type profileService struct {
	profiles ports.ProfileRepository
	audit    ports.AuditRepository
	cache    ports.AuthzCache
	prov     *provisioner
	log      zerolog.Logger
	now      func() time.Time
}

func NewProfileService(
	roles ports.RoleRepository,
	profiles ports.ProfileRepository,
	audit ports.AuditRepository,
	cache ports.AuthzCache,
	log zerolog.Logger,
) ports.ProfileService {
	return &profileService{
		profiles: profiles,
		audit:    audit,
		cache:    cache,
		prov:     &provisioner{roles: roles, profiles: profiles, audit: audit, log: log},
		log:      log,
		now:      time.Now,
	}
}

func (s *profileService) GetProfile(ctx context.Context, userID, email string) (*domain.Profile, error) {
	prov, err := s.prov.provision(ctx, userID, domain.DefaultFullName("", email), sourceDefault, domain.RequestMeta{})
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if prov.profileCreated || prov.roleCreated {
		invalidate(ctx, s.cache, s.log, userID)
	}
	return prov.profile, nil
}

// UpdateProfile applies a partial update. Only supplied fields change.
func (s *profileService) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate, meta domain.RequestMeta) (*domain.Profile, error) {
	if err := upd.Validate(s.now()); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return s.GetProfile(ctx, userID, "")
	}

	if _, _, err := s.prov.ensureProfile(ctx, userID, domain.DefaultFullName("", ""), meta); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	p, err := s.profiles.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	// The cache holds a profile snapshot.
	invalidate(ctx, s.cache, s.log, userID)

	ev := domain.NewAuditEvent(domain.EventProfileUpdated, &userID, map[string]any{"fields": upd.Fields()}, meta)
	if _, err := s.audit.Record(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record profile update")
	}

	return p, nil
}
