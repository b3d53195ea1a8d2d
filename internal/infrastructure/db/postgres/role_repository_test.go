package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

func countAudit(t *testing.T, repo *AuditRepository, eventType string) int64 {
	t.Helper()
	page, err := repo.Query(context.Background(), domain.AuditFilter{EventType: eventType, Limit: domain.MaxAuditLimit})
	require.NoError(t, err)
	return page.Total
}

func TestRoleRepository_AssignOutcomes(t *testing.T) {
	pool := setupTestDB(t)
	roles := NewRoleRepository(pool)
	audit := NewAuditRepository(pool)
	ctx := context.Background()
	admin := "admin-1"

	res, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleCustomer, IsPrimary: true, Source: "default"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignCreated, res.Outcome)
	assert.True(t, res.Assignment.IsPrimary)
	assert.NotEmpty(t, res.Assignment.ID)

	res, err = roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleTechnician, AssignedBy: &admin, Reason: "hired", Source: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignCreated, res.Outcome)
	assert.False(t, res.Assignment.IsPrimary)
	require.NotNil(t, res.Assignment.AssignedBy)
	assert.Equal(t, admin, *res.Assignment.AssignedBy)

	res, err = roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleTechnician, AssignedBy: &admin, Source: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignAlreadyExists, res.Outcome)

	res, err = roles.Assign(ctx, ports.AssignRoleParams{UserID: "u1", Role: domain.RoleTechnician, AssignedBy: &admin, IsPrimary: true, Source: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignPromoted, res.Outcome)

	list, err := roles.ListRoles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoleTechnician, list[0].Role, "primary sorts first")
	assert.True(t, list[0].IsPrimary)
	assert.False(t, list[1].IsPrimary)

	assert.Equal(t, int64(3), countAudit(t, audit, domain.EventRoleAssigned), "only mutating assigns are audited")
}

func TestRoleRepository_AuditCarriesActorAndTarget(t *testing.T) {
	pool := setupTestDB(t)
	roles := NewRoleRepository(pool)
	audit := NewAuditRepository(pool)
	ctx := context.Background()
	admin := "admin-1"

	_, err := roles.Assign(ctx, ports.AssignRoleParams{
		UserID: "u2", Role: domain.RoleReceptionist, AssignedBy: &admin, Reason: "front desk", Source: "admin",
		Meta: domain.RequestMeta{IP: "10.0.0.7", UserAgent: "curl/8"},
	})
	require.NoError(t, err)

	page, err := audit.Query(ctx, domain.AuditFilter{UserID: admin, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	ev := page.Events[0]
	assert.Equal(t, domain.EventRoleAssigned, ev.EventType)
	assert.Equal(t, "u2", ev.Metadata["target_user_id"])
	assert.Equal(t, "receptionist", ev.Metadata["assigned_role"])
	assert.Equal(t, "front desk", ev.Metadata["reason"])
	require.NotNil(t, ev.IPAddress)
	assert.Equal(t, "10.0.0.7", *ev.IPAddress)
}

func TestRoleRepository_ConcurrentAssignCreatesOnce(t *testing.T) {
	pool := setupTestDB(t)
	roles := NewRoleRepository(pool)
	audit := NewAuditRepository(pool)
	ctx := context.Background()

	const n = 8
	outcomes := make([]domain.AssignOutcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u3", Role: domain.RoleCustomer, IsPrimary: true, Source: "default"})
			outcomes[i], errs[i] = res.Outcome, err
		}()
	}
	wg.Wait()

	created := 0
	for i := range n {
		require.NoError(t, errs[i])
		if outcomes[i] == domain.AssignCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)

	list, err := roles.ListRoles(ctx, "u3")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int64(1), countAudit(t, audit, domain.EventRoleAssigned))
}

func TestRoleRepository_SinglePrimary(t *testing.T) {
	pool := setupTestDB(t)
	roles := NewRoleRepository(pool)
	ctx := context.Background()

	for _, r := range []domain.Role{domain.RoleCustomer, domain.RoleTechnician, domain.RoleAdmin, domain.RoleCustomer} {
		_, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u4", Role: r, IsPrimary: true, Source: "admin"})
		require.NoError(t, err)
	}

	list, err := roles.ListRoles(ctx, "u4")
	require.NoError(t, err)
	primaries := 0
	for _, a := range list {
		if a.IsPrimary {
			primaries++
			assert.Equal(t, domain.RoleCustomer, a.Role)
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestRoleRepository_Revoke(t *testing.T) {
	pool := setupTestDB(t)
	roles := NewRoleRepository(pool)
	audit := NewAuditRepository(pool)
	ctx := context.Background()
	admin := "admin-1"

	_, err := roles.Assign(ctx, ports.AssignRoleParams{UserID: "u5", Role: domain.RoleTechnician, Source: "admin"})
	require.NoError(t, err)

	removed, err := roles.Revoke(ctx, ports.RevokeRoleParams{UserID: "u5", Role: domain.RoleTechnician, RevokedBy: &admin})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = roles.Revoke(ctx, ports.RevokeRoleParams{UserID: "u5", Role: domain.RoleTechnician, RevokedBy: &admin})
	require.NoError(t, err)
	assert.False(t, removed)

	list, err := roles.ListRoles(ctx, "u5")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int64(1), countAudit(t, audit, domain.EventRoleRevoked))
}

func TestRoleRepository_UnknownRoleRejectedByStore(t *testing.T) {
	pool := setupTestDB(t)
	roles := NewRoleRepository(pool)
	audit := NewAuditRepository(pool)

	_, err := roles.Assign(context.Background(), ports.AssignRoleParams{UserID: "u6", Role: domain.Role("superuser"), Source: "admin"})
	require.Error(t, err)
	assert.Equal(t, int64(0), countAudit(t, audit, domain.EventRoleAssigned), "failed mutation leaves no audit row")
}

func TestInsertAssignment_DuplicateKeySettlesRaceWithoutLock(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	_, err := NewRoleRepository(pool).Assign(ctx, ports.AssignRoleParams{UserID: "u7", Role: domain.RoleTechnician, IsPrimary: true, Source: "admin"})
	require.NoError(t, err)

	// The winner holds an uncommitted row for (u7, customer).
	winner, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = winner.Rollback(context.Background()) }()
	_, inserted, err := insertAssignment(ctx, winner, ports.AssignRoleParams{UserID: "u7", Role: domain.RoleCustomer})
	require.NoError(t, err)
	require.True(t, inserted)

	type outcome struct {
		inserted  bool
		primaries int
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		loser, err := pool.Begin(ctx)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer func() { _ = loser.Rollback(context.Background()) }()

		_, inserted, err := insertAssignment(ctx, loser, ports.AssignRoleParams{UserID: "u7", Role: domain.RoleCustomer, IsPrimary: true})
		if err != nil {
			done <- outcome{err: err}
			return
		}
		// The transaction stays usable and the primary clear was undone.
		var primaries int
		err = loser.QueryRow(ctx, `SELECT count(*) FROM user_roles WHERE user_id = $1 AND is_primary`, "u7").Scan(&primaries)
		done <- outcome{inserted: inserted, primaries: primaries, err: err}
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, winner.Commit(ctx))

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.False(t, got.inserted, "duplicate key reported as not inserted")
		assert.Equal(t, 1, got.primaries)
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent insert never finished")
	}
}
