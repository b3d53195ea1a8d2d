package ports

import (
	"context"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// IdentityService turns a bearer token into an authorized identity.
type IdentityService interface {
	Resolve(ctx context.Context, token string) (*domain.Identity, error)
	// Me loads the full assignment rows for an already resolved identity.
	Me(ctx context.Context, id *domain.Identity) (*MeView, error)
}

type MeView struct {
	UserID  string
	Email   string
	Roles   []domain.RoleAssignment
	Profile *domain.ProfileSnapshot
}

type AssignRoleInput struct {
	UserID    string
	Role      string
	IsPrimary bool
	Reason    string
	ActorID   string
	Meta      domain.RequestMeta
}

type RevokeRoleInput struct {
	UserID  string
	Role    string
	Reason  string
	ActorID string
	Meta    domain.RequestMeta
}

// RoleService runs admin role mutations. Each mutation that changes state
// invalidates the target's cache entry before returning.
type RoleService interface {
	AssignRole(ctx context.Context, in AssignRoleInput) (domain.AssignResult, error)
	RevokeRole(ctx context.Context, in RevokeRoleInput) (bool, error)
	ListRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
}

type AuditService interface {
	Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error)
}

type ProfileService interface {
	// GetProfile lazily creates the profile on first access.
	GetProfile(ctx context.Context, userID, email string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate, meta domain.RequestMeta) (*domain.Profile, error)
}

// Webhook delivery outcomes.
const (
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
)

type WebhookResult struct {
	Status  string
	UserID  string
	Message string
}

// WebhookService provisions users announced by the auth provider.
type WebhookService interface {
	HandleUserCreated(ctx context.Context, body []byte, signature string, meta domain.RequestMeta) (WebhookResult, error)
}
