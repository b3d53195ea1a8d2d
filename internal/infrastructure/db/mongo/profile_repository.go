package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

type profileDoc struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"user_id"`
	FullName  string     `bson:"full_name"`
	AvatarURL *string    `bson:"avatar_url"`
	Phone     *string    `bson:"phone"`
	BirthDate *time.Time `bson:"birth_date"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func (d profileDoc) toDomain() *domain.Profile {
	p := &domain.Profile{
		ID:        d.ID,
		UserID:    d.UserID,
		FullName:  d.FullName,
		AvatarURL: d.AvatarURL,
		Phone:     d.Phone,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.BirthDate != nil {
		b := d.BirthDate.UTC()
		p.BirthDate = &b
	}
	return p
}

type ProfileRepository struct {
	col *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{col: db.Collection(collectionProfiles)}
}

var _ ports.ProfileRepository = (*ProfileRepository)(nil)

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var d profileDoc
	if err := r.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, wrap("get profile", err)
	}
	return d.toDomain(), nil
}

// EnsureProfile upserts with $setOnInsert so an existing profile is never
// modified. A duplicate key means a concurrent caller created it first.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, userID, fullName string) (*domain.Profile, bool, error) {
	ts := now()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"full_name":  fullName,
			"avatar_url": nil,
			"phone":      nil,
			"birth_date": nil,
			"created_at": ts,
			"updated_at": ts,
		}},
		options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, wrap("ensure profile", err)
	}
	created := err == nil && res.UpsertedCount == 1

	p, err := r.GetProfile(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.Profile, error) {
	set := bson.M{"updated_at": now()}
	if upd.FullName != nil {
		set["full_name"] = strings.TrimSpace(*upd.FullName)
	}
	if upd.AvatarURL != nil {
		set["avatar_url"] = *upd.AvatarURL
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.BirthDate != nil {
		set["birth_date"] = upd.BirthDate.UTC()
	}

	// Cleared fields go back to null, the shape EnsureProfile inserts.
	if upd.ClearAvatarURL {
		set["avatar_url"] = nil
	}
	if upd.ClearPhone {
		set["phone"] = nil
	}
	if upd.ClearBirthDate {
		set["birth_date"] = nil
	}

	var d profileDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, wrap("update profile", err)
	}
	return d.toDomain(), nil
}
