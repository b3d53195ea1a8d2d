package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

type roleDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Role       string    `bson:"role"`
	AssignedAt time.Time `bson:"assigned_at"`
	AssignedBy *string   `bson:"assigned_by"`
	IsPrimary  bool      `bson:"is_primary"`
}

func (d roleDoc) toDomain() domain.RoleAssignment {
	return domain.RoleAssignment{
		ID:         d.ID,
		UserID:     d.UserID,
		Role:       domain.Role(d.Role),
		AssignedAt: d.AssignedAt.UTC(),
		AssignedBy: d.AssignedBy,
		IsPrimary:  d.IsPrimary,
	}
}

// RoleRepository stores role assignments and their audit events inside one
// transaction.
type RoleRepository struct {
	client *mongo.Client
	roles  *mongo.Collection
	audit  *mongo.Collection
}

func NewRoleRepository(client *mongo.Client, db *mongo.Database) *RoleRepository {
	return &RoleRepository{
		client: client,
		roles:  db.Collection(collectionRoles),
		audit:  db.Collection(collectionAudit),
	}
}

var _ ports.RoleRepository = (*RoleRepository)(nil)

func (r *RoleRepository) Assign(ctx context.Context, p ports.AssignRoleParams) (domain.AssignResult, error) {
	res, err := r.inTx(ctx, func(sc mongo.SessionContext) (any, error) {
		existing, err := r.find(sc, p.UserID, p.Role)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		var out domain.AssignResult
		switch {
		case existing != nil && (!p.IsPrimary || existing.IsPrimary):
			return domain.AssignResult{Assignment: existing.toDomain(), Outcome: domain.AssignAlreadyExists}, nil
		case existing != nil:
			if err := r.clearPrimary(sc, p.UserID); err != nil {
				return nil, err
			}
			if _, err := r.roles.UpdateByID(sc, existing.ID, bson.M{"$set": bson.M{"is_primary": true}}); err != nil {
				return nil, err
			}
			existing.IsPrimary = true
			out = domain.AssignResult{Assignment: existing.toDomain(), Outcome: domain.AssignPromoted}
		default:
			if p.IsPrimary {
				if err := r.clearPrimary(sc, p.UserID); err != nil {
					return nil, err
				}
			}
			doc := roleDoc{
				ID:         uuid.NewString(),
				UserID:     p.UserID,
				Role:       string(p.Role),
				AssignedAt: now(),
				AssignedBy: p.AssignedBy,
				IsPrimary:  p.IsPrimary,
			}
			if _, err := r.roles.InsertOne(sc, doc); err != nil {
				return nil, err
			}
			out = domain.AssignResult{Assignment: doc.toDomain(), Outcome: domain.AssignCreated}
		}

		ev := domain.RoleAssignedEvent(out.Assignment, out.Outcome, p.Reason, p.Source, p.Meta)
		if _, err := r.audit.InsertOne(sc, newAuditDoc(ev)); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return domain.AssignResult{}, wrap("assign role", err)
		}
		// Lost the race: the transaction aborted and the winner's row stands.
		winner, ferr := r.find(ctx, p.UserID, p.Role)
		if ferr != nil {
			return domain.AssignResult{}, wrap("assign role", ferr)
		}
		return domain.AssignResult{Assignment: winner.toDomain(), Outcome: domain.AssignAlreadyExists}, nil
	}
	return res.(domain.AssignResult), nil
}

func (r *RoleRepository) Revoke(ctx context.Context, p ports.RevokeRoleParams) (bool, error) {
	res, err := r.inTx(ctx, func(sc mongo.SessionContext) (any, error) {
		del, err := r.roles.DeleteOne(sc, bson.M{"user_id": p.UserID, "role": string(p.Role)})
		if err != nil {
			return nil, err
		}
		if del.DeletedCount == 0 {
			return false, nil
		}
		ev := domain.RoleRevokedEvent(p.UserID, p.Role, p.RevokedBy, p.Reason, p.Meta)
		if _, err := r.audit.InsertOne(sc, newAuditDoc(ev)); err != nil {
			return nil, err
		}
		return true, nil
	})
	if err != nil {
		return false, wrap("revoke role", err)
	}
	return res.(bool), nil
}

func (r *RoleRepository) ListRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	cur, err := r.roles.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, wrap("list roles", err)
	}
	var docs []roleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("list roles", err)
	}
	out := make([]domain.RoleAssignment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	domain.SortAssignments(out)
	return out, nil
}

func (r *RoleRepository) inTx(ctx context.Context, fn func(mongo.SessionContext) (any, error)) (any, error) {
	sess, err := r.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer sess.EndSession(context.WithoutCancel(ctx))
	return sess.WithTransaction(ctx, fn, options.Transaction())
}

func (r *RoleRepository) find(ctx context.Context, userID string, role domain.Role) (*roleDoc, error) {
	var d roleDoc
	if err := r.roles.FindOne(ctx, bson.M{"user_id": userID, "role": string(role)}).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RoleRepository) clearPrimary(ctx context.Context, userID string) error {
	_, err := r.roles.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_primary": true},
		bson.M{"$set": bson.M{"is_primary": false}})
	return err
}
