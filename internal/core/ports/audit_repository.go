package ports

import (
	"context"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// AuditRepository is the append-only audit log. No update or delete exists.
type AuditRepository interface {
	// Record fills in ID and CreatedAt when empty and returns the stored event.
	Record(ctx context.Context, event *domain.AuditEvent) (*domain.AuditEvent, error)
	Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error)
}

// SecurityEventSink accepts audit events for asynchronous recording. Enqueue
// never blocks; it reports false when the event was dropped.
type SecurityEventSink interface {
	Enqueue(event *domain.AuditEvent) bool
}
