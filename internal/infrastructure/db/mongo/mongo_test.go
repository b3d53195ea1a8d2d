package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/pkg/retry"
)

// setupTestMongo connects to MONGO_TEST_URI, which must point at a replica
// set. Each test gets a fresh database that is dropped afterwards.
func setupTestMongo(t *testing.T) (*mongo.Client, *mongo.Database) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	dbName := fmt.Sprintf("identity_test_%d", time.Now().UnixNano())
	client, db, err := Connect(ctx, Config{URI: uri, Database: dbName, Timeout: 2 * time.Second, Retry: retry.Policy{Attempts: 1}}, zerolog.Nop())
	if err != nil {
		t.Skipf("mongo test instance unavailable: %v", err)
	}
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return client, db
}

func TestNewAuditDoc_FillsDefaults(t *testing.T) {
	d := newAuditDoc(domain.NewAuditEvent(domain.EventForbidden, nil, nil, domain.RequestMeta{IP: "10.0.0.1"}))
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())
	assert.NotNil(t, d.Metadata)
	require.NotNil(t, d.IPAddress)
	assert.Equal(t, "10.0.0.1", *d.IPAddress)
}

func TestWrap_NetworkErrorsAreUpstreamUnavailable(t *testing.T) {
	err := wrap("list roles", fmt.Errorf("dial: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	err = wrap("list roles", errors.New("bad query"))
	assert.NotErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Nil(t, wrap("noop", nil))
}

func TestRoleRepository_AssignOutcomes(t *testing.T) {
	client, db := setupTestMongo(t)
	roles := NewRoleRepository(client, db)
	audit := NewAuditRepository(db)
	ctx := context.Background()

	res, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleCustomer, IsPrimary: true, Source: "default"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignCreated, res.Outcome)

	res, err = roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleAdmin, Source: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignCreated, res.Outcome)

	res, err = roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleAdmin, Source: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignAlreadyExists, res.Outcome)

	res, err = roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleAdmin, IsPrimary: true, Source: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignPromoted, res.Outcome)

	list, err := roles.ListRoles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoleAdmin, list[0].Role)
	assert.True(t, list[0].IsPrimary)
	assert.False(t, list[1].IsPrimary)

	page, err := audit.Query(ctx, domain.AuditFilter{EventType: domain.EventRoleAssigned, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
}

func TestRoleRepository_ConcurrentAssignCreatesOnce(t *testing.T) {
	client, db := setupTestMongo(t)
	roles := NewRoleRepository(client, db)
	ctx := context.Background()

	const n = 6
	created := make([]bool, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u2", Role: domain.RoleTechnician, Source: "admin"})
			assert.NoError(t, err)
			created[i] = res.Outcome == domain.AssignCreated
		}()
	}
	wg.Wait()

	count := 0
	for _, c := range created {
		if c {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRoleRepository_Revoke(t *testing.T) {
	client, db := setupTestMongo(t)
	roles := NewRoleRepository(client, db)
	ctx := context.Background()

	_, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u3", Role: domain.RoleReceptionist, Source: "admin"})
	require.NoError(t, err)

	removed, err := roles.Revoke(ctx, ports.RevokeRoleParams{UserID: "u3", Role: domain.RoleReceptionist})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = roles.Revoke(ctx, ports.RevokeRoleParams{UserID: "u3", Role: domain.RoleReceptionist})
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestProfileRepository_EnsureAndUpdate(t *testing.T) {
	_, db := setupTestMongo(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	_, err := repo.GetProfile(ctx, "u1")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)

	p, created, err := repo.EnsureProfile(ctx, "u1", "alice")
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = repo.EnsureProfile(ctx, "u1", "other")
	require.NoError(t, err)
	assert.False(t, created)

	avatar := "avatars/u1.png"
	updated, err := repo.UpdateProfile(ctx, "u1", domain.ProfileUpdate{AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, "alice", updated.FullName)
	require.NotNil(t, updated.AvatarURL)
	assert.Equal(t, avatar, *updated.AvatarURL)

	cleared, err := repo.UpdateProfile(ctx, "u1", domain.ProfileUpdate{ClearAvatarURL: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.AvatarURL)
	assert.Equal(t, "alice", cleared.FullName)
}

func TestAuditRepository_QueryNewestFirst(t *testing.T) {
	_, db := setupTestMongo(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		ev := domain.NewAuditEvent(domain.EventProfileUpdated, nil, nil, domain.RequestMeta{})
		ev.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := repo.Record(ctx, ev)
		require.NoError(t, err)
	}

	page, err := repo.Query(ctx, domain.AuditFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Events, 2)
	assert.True(t, page.Events[0].CreatedAt.Equal(base.Add(3*time.Hour)))
	assert.True(t, page.Events[1].CreatedAt.Equal(base.Add(2*time.Hour)))
}
