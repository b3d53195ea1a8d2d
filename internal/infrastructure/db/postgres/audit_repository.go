package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

const auditColumns = `id, user_id, event_type, metadata, ip_address, user_agent, created_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuditRepository is the append-only audit_logs table.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Record(ctx context.Context, event *domain.AuditEvent) (*domain.AuditEvent, error) {
	stored, err := insertAudit(ctx, r.pool, event)
	if err != nil {
		return nil, wrap("record audit event", err)
	}
	return stored, nil
}

func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error) {
	where, args := auditWhere(filter)
	page := domain.AuditPage{Events: []domain.AuditEvent{}, Limit: filter.Limit, Offset: filter.Offset}

	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs`+where, args...).Scan(&page.Total); err != nil {
		return domain.AuditPage{}, wrap("count audit events", err)
	}
	if page.Total == 0 {
		return page, nil
	}

	n := len(args)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			auditColumns, where, n+1, n+2),
		args...)
	if err != nil {
		return domain.AuditPage{}, wrap("query audit events", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEvent, error) {
		e, err := scanAudit(row)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		return *e, nil
	})
	if err != nil {
		return domain.AuditPage{}, wrap("query audit events", err)
	}
	page.Events = events
	return page, nil
}

func auditWhere(f domain.AuditFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Start != nil {
		add("created_at >= $%d", *f.Start)
	}
	if f.End != nil {
		add("created_at <= $%d", *f.End)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func insertAudit(ctx context.Context, q querier, e *domain.AuditEvent) (*domain.AuditEvent, error) {
	stored := *e
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		stored.ID, stored.UserID, stored.EventType, stored.Metadata, stored.IPAddress, stored.UserAgent, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}
	return &stored, nil
}

func scanAudit(row pgx.Row) (*domain.AuditEvent, error) {
	var e domain.AuditEvent
	if err := row.Scan(&e.ID, &e.UserID, &e.EventType, &e.Metadata, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
