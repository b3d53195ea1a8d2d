package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

type roleService struct {
	roles    ports.RoleRepository
	profiles ports.ProfileRepository
	cache    ports.AuthzCache
	log      zerolog.Logger
}

// NewRoleService returns the admin role mutation service.
func NewRoleService(
	roles ports.RoleRepository,
	profiles ports.ProfileRepository,
	cache ports.AuthzCache,
	log zerolog.Logger,
) ports.RoleService {
	return &roleService{roles: roles, profiles: profiles, cache: cache, log: log}
}

// AssignRole validates the role and the target, assigns idempotently and
// invalidates the target's cache entry when anything changed.
func (s *roleService) AssignRole(ctx context.Context, in ports.AssignRoleInput) (domain.AssignResult, error) {
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return domain.AssignResult{}, err
	}

	// Known users are the ones with a profile: created by the signup webhook
	// or by their first authenticated request.
	if _, err := s.profiles.GetProfile(ctx, in.UserID); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return domain.AssignResult{}, fmt.Errorf("assign role: %w", domain.ErrUserNotFound)
		}
		return domain.AssignResult{}, fmt.Errorf("assign role: %w", err)
	}

	res, err := s.roles.Assign(ctx, ports.AssignRoleParams{
		UserID:     in.UserID,
		Role:       role,
		AssignedBy: optionalActor(in.ActorID),
		IsPrimary:  in.IsPrimary,
		Reason:     in.Reason,
		Source:     sourceAdmin,
		Meta:       in.Meta,
	})
	if err != nil {
		return domain.AssignResult{}, fmt.Errorf("assign role: %w", err)
	}

	metrics.RoleMutationsTotal.WithLabelValues("assign", string(res.Outcome)).Inc()
	if res.Changed() {
		invalidate(ctx, s.cache, s.log, in.UserID)
	}

	s.log.Info().
		Str("user_id", in.UserID).
		Str("role", string(role)).
		Str("actor_id", in.ActorID).
		Str("outcome", string(res.Outcome)).
		Msg("role assign")

	return res, nil
}

// RevokeRole reports false, without error, when the user did not hold the role.
func (s *roleService) RevokeRole(ctx context.Context, in ports.RevokeRoleInput) (bool, error) {
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return false, err
	}

	removed, err := s.roles.Revoke(ctx, ports.RevokeRoleParams{
		UserID:    in.UserID,
		Role:      role,
		RevokedBy: optionalActor(in.ActorID),
		Reason:    in.Reason,
		Meta:      in.Meta,
	})
	if err != nil {
		return false, fmt.Errorf("revoke role: %w", err)
	}

	if removed {
		metrics.RoleMutationsTotal.WithLabelValues("revoke", "revoked").Inc()
		invalidate(ctx, s.cache, s.log, in.UserID)
	} else {
		metrics.RoleMutationsTotal.WithLabelValues("revoke", "absent").Inc()
	}

	s.log.Info().
		Str("user_id", in.UserID).
		Str("role", string(role)).
		Str("actor_id", in.ActorID).
		Bool("removed", removed).
		Msg("role revoke")

	return removed, nil
}

func (s *roleService) ListRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	assignments, err := s.roles.ListRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return assignments, nil
}

type auditService struct {
	repo ports.AuditRepository
}

func NewAuditService(repo ports.AuditRepository) ports.AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error) {
	if err := filter.Normalize(); err != nil {
		return domain.AuditPage{}, err
	}
	page, err := s.repo.Query(ctx, filter)
	if err != nil {
		return domain.AuditPage{}, fmt.Errorf("query audit log: %w", err)
	}
	return page, nil
}
