package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

type auditDoc struct {
	ID        string         `bson:"_id"`
	UserID    *string        `bson:"user_id"`
	EventType string         `bson:"event_type"`
	Metadata  map[string]any `bson:"metadata"`
	IPAddress *string        `bson:"ip_address"`
	UserAgent *string        `bson:"user_agent"`
	CreatedAt time.Time      `bson:"created_at"`
}

func newAuditDoc(e *domain.AuditEvent) auditDoc {
	d := auditDoc{
		ID:        e.ID,
		UserID:    e.UserID,
		EventType: e.EventType,
		Metadata:  e.Metadata,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt.UTC(),
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		d.CreatedAt = now()
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	return d
}

func (d auditDoc) toDomain() domain.AuditEvent {
	return domain.AuditEvent{
		ID:        d.ID,
		UserID:    d.UserID,
		EventType: d.EventType,
		Metadata:  d.Metadata,
		IPAddress: d.IPAddress,
		UserAgent: d.UserAgent,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// AuditRepository is the append-only audit_logs collection.
type AuditRepository struct {
	col *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(collectionAudit)}
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Record(ctx context.Context, event *domain.AuditEvent) (*domain.AuditEvent, error) {
	doc := newAuditDoc(event)
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, wrap("record audit event", err)
	}
	stored := doc.toDomain()
	return &stored, nil
}

func (r *AuditRepository) Query(ctx context.Context, f domain.AuditFilter) (domain.AuditPage, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.EventType != "" {
		filter["event_type"] = f.EventType
	}
	if f.Start != nil || f.End != nil {
		rng := bson.M{}
		if f.Start != nil {
			rng["$gte"] = f.Start.UTC()
		}
		if f.End != nil {
			rng["$lte"] = f.End.UTC()
		}
		filter["created_at"] = rng
	}

	page := domain.AuditPage{Events: []domain.AuditEvent{}, Limit: f.Limit, Offset: f.Offset}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return domain.AuditPage{}, wrap("count audit events", err)
	}
	page.Total = total
	if total == 0 {
		return page, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(f.Limit))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return domain.AuditPage{}, wrap("query audit events", err)
	}
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return domain.AuditPage{}, wrap("query audit events", err)
	}
	for _, d := range docs {
		page.Events = append(page.Events, d.toDomain())
	}
	return page, nil
}
