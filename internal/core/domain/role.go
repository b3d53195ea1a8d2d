package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role is one of the fixed platform roles a user can hold.
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleReceptionist Role = "receptionist"
	RoleTechnician   Role = "technician"
	RoleAdmin        Role = "admin"
)

// DefaultRole is assigned, as primary, on a user's first resolution.
const DefaultRole = RoleCustomer

var knownRoles = map[Role]struct{}{
	RoleCustomer:     {},
	RoleReceptionist: {},
	RoleTechnician:   {},
	RoleAdmin:        {},
}

// AllRoles returns the closed set of roles in a stable order.
func AllRoles() []Role {
	return []Role{RoleCustomer, RoleReceptionist, RoleTechnician, RoleAdmin}
}

// ParseRole normalises s and checks it against the role enumeration.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r belongs to the role enumeration.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string { return string(r) }

// RoleAssignment records that a user holds a role.
// (UserID, Role) is unique and at most one assignment per user is primary.
type RoleAssignment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy *string   `json:"assigned_by"`
	IsPrimary  bool      `json:"is_primary"`
}

// AssignOutcome tells the caller what an idempotent assign actually did.
type AssignOutcome string

const (
	AssignCreated       AssignOutcome = "created"
	AssignAlreadyExists AssignOutcome = "already_exists"
	// AssignPromoted means the assignment existed and was made primary.
	AssignPromoted AssignOutcome = "promoted"
)

// AssignResult is returned by every assign call.
type AssignResult struct {
	Assignment RoleAssignment
	Outcome    AssignOutcome
}

// Changed reports whether the assign mutated stored state.
func (r AssignResult) Changed() bool {
	return r.Outcome == AssignCreated || r.Outcome == AssignPromoted
}

// RoleNames projects assignments to their role names, preserving order.
func RoleNames(assignments []RoleAssignment) []Role {
	out := make([]Role, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a.Role)
	}
	return out
}

// SortAssignments orders assignments primary first, then by assignment time, then by name.
func SortAssignments(assignments []RoleAssignment) {
	slices.SortStableFunc(assignments, func(a, b RoleAssignment) int {
		if a.IsPrimary != b.IsPrimary {
			if a.IsPrimary {
				return -1
			}
			return 1
		}
		if c := a.AssignedAt.Compare(b.AssignedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.Role), string(b.Role))
	})
}
