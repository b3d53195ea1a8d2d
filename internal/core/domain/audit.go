package domain

import (
	"fmt"
	"time"
)

// Audit event types.
const (
	EventRoleAssigned   = "role.assigned"
	EventRoleRevoked    = "role.revoked"
	EventUserRegistered = "user.registered"
	EventProfileCreated = "profile.created"
	EventProfileUpdated = "profile.updated"
	EventTokenRejected  = "auth.token_rejected"
	EventForbidden      = "auth.forbidden"
)

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditEvent is an append-only security record. UserID is the acting user,
// nil for system actions.
type AuditEvent struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id"`
	EventType string         `json:"event_type"`
	Metadata  map[string]any `json:"metadata"`
	IPAddress *string        `json:"ip_address"`
	UserAgent *string        `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
}

// RequestMeta is the client context attached to audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// NewAuditEvent builds an event stamped with meta. CreatedAt and ID are
// assigned by the recorder.
func NewAuditEvent(eventType string, actor *string, metadata map[string]any, meta RequestMeta) *AuditEvent {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &AuditEvent{
		UserID:    actor,
		EventType: eventType,
		Metadata:  metadata,
		IPAddress: optional(meta.IP),
		UserAgent: optional(meta.UserAgent),
	}
}

// RoleAssignedEvent describes a mutating assign.
func RoleAssignedEvent(a RoleAssignment, outcome AssignOutcome, reason, source string, meta RequestMeta) *AuditEvent {
	md := map[string]any{
		"assigned_role":  string(a.Role),
		"target_user_id": a.UserID,
		"assigned_by_id": derefOrNil(a.AssignedBy),
		"is_primary":     a.IsPrimary,
		"outcome":        string(outcome),
		"source":         source,
	}
	if reason != "" {
		md["reason"] = reason
	}
	return NewAuditEvent(EventRoleAssigned, a.AssignedBy, md, meta)
}

// RoleRevokedEvent describes a revoke that removed a row.
func RoleRevokedEvent(userID string, role Role, revokedBy *string, reason string, meta RequestMeta) *AuditEvent {
	md := map[string]any{
		"revoked_role":   string(role),
		"target_user_id": userID,
		"revoked_by_id":  derefOrNil(revokedBy),
	}
	if reason != "" {
		md["reason"] = reason
	}
	return NewAuditEvent(EventRoleRevoked, revokedBy, md, meta)
}

// AuditFilter selects audit events. Zero values mean "no filter".
type AuditFilter struct {
	UserID    string
	EventType string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// Normalize applies the default limit and rejects out-of-range paging.
func (f *AuditFilter) Normalize() error {
	switch {
	case f.Limit == 0:
		f.Limit = DefaultAuditLimit
	case f.Limit < 0 || f.Limit > MaxAuditLimit:
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxAuditLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidInput)
	}
	return nil
}

// AuditPage is one page of events, newest first. Total ignores paging.
type AuditPage struct {
	Events []AuditEvent
	Total  int64
	Limit  int
	Offset int
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
