package ports

import (
	"context"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// AssignRoleParams carries one assign call. Source names the path that
// triggered it (admin, default, webhook) and is kept in the audit metadata.
type AssignRoleParams struct {
	UserID     string
	Role       domain.Role
	AssignedBy *string
	IsPrimary  bool
	Reason     string
	Source     string
	Meta       domain.RequestMeta
}

type RevokeRoleParams struct {
	UserID    string
	Role      domain.Role
	RevokedBy *string
	Reason    string
	Meta      domain.RequestMeta
}

// RoleRepository persists role assignments.
//
// Assign and Revoke are idempotent. When they change stored state they append
// the matching audit event in the same transaction; a failed append rolls the
// mutation back. A lost race on the (user, role) uniqueness constraint is
// reported as domain.AssignAlreadyExists, never as an error.
type RoleRepository interface {
	Assign(ctx context.Context, p AssignRoleParams) (domain.AssignResult, error)
	Revoke(ctx context.Context, p RevokeRoleParams) (bool, error)
	// ListRoles returns the user's assignments ordered by domain.SortAssignments.
	// An empty slice is a valid result.
	ListRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
}
