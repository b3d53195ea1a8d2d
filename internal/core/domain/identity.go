package domain

import (
	"fmt"
	"time"
)

// Claims are the verified fields of a bearer token. They live for one request.
type Claims struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// RoleHints are roles the issuer embedded in the token. They are never
	// trusted for authorization; the role store is authoritative.
	RoleHints []string
}

// ProfileSnapshot is the slice of a profile carried in the authorization cache.
type ProfileSnapshot struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// CacheEntry is what the authorization cache stores per user.
type CacheEntry struct {
	Roles   []Role           `json:"roles"`
	Profile *ProfileSnapshot `json:"profile,omitempty"`
}

// Identity is the authenticated caller, built once per request.
type Identity struct {
	UserID  string
	Email   string
	Roles   []Role
	Profile *ProfileSnapshot
}

// PrimaryRole returns the first role, which is the primary one when any is set.
func (i *Identity) PrimaryRole() (Role, bool) {
	if i == nil || len(i.Roles) == 0 {
		return "", false
	}
	return i.Roles[0], true
}

func (i *Identity) HasRole(role Role) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *Identity) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if i.HasRole(r) {
			return true
		}
	}
	return false
}

// RequireRole returns ErrForbidden unless the identity holds role.
func (i *Identity) RequireRole(role Role) error {
	if !i.HasRole(role) {
		return fmt.Errorf("%w: requires role %s", ErrForbidden, role)
	}
	return nil
}

// RequireAnyRole returns ErrForbidden unless the identity holds one of roles.
func (i *Identity) RequireAnyRole(roles ...Role) error {
	if !i.HasAnyRole(roles...) {
		return fmt.Errorf("%w: requires one of %v", ErrForbidden, roles)
	}
	return nil
}
