// Package mongo implements the role, profile and audit repositories on
// MongoDB. Role mutations use multi-document transactions, so the server must
// run as a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/pkg/retry"
)

const defaultTimeout = 10 * time.Second

const (
	collectionRoles    = "user_roles"
	collectionProfiles = "profiles"
	collectionAudit    = "audit_logs"
)

// Config captures the minimal settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
	Retry    retry.Policy
}

// Connect establishes a MongoDB client, verifies connectivity with a ping
// retried under cfg.Retry, and returns both the client and the selected
// database. A default timeout is applied per attempt when none is provided.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	err = retry.Connect(ctx, cfg.Retry, log, "mongo", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(pingCtx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the uniqueness and lookup indexes. Existing indexes
// with the same definition are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	roles := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role", Value: 1}},
			Options: options.Index().SetName("user_role_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("one_primary_per_user").SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_primary": true}),
		},
	}
	if _, err := db.Collection(collectionRoles).Indexes().CreateMany(ctx, roles); err != nil {
		return wrap("create role indexes", err)
	}

	profiles := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("user_id_unique").SetUnique(true),
	}
	if _, err := db.Collection(collectionProfiles).Indexes().CreateOne(ctx, profiles); err != nil {
		return wrap("create profile indexes", err)
	}

	audit := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection(collectionAudit).Indexes().CreateMany(ctx, audit); err != nil {
		return wrap("create audit indexes", err)
	}
	return nil
}

// wrap annotates err with op and tags network failures as
// domain.ErrUpstreamUnavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// now truncates to the millisecond precision BSON dates carry.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
