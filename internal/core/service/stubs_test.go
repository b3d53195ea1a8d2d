package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

// ----- Stubs -----

// memRoleRepo mimics the store: (user, role) uniqueness, single primary and
// an audit append in the same critical section as the mutation.
type memRoleRepo struct {
	mu        sync.Mutex
	rows      map[string]map[domain.Role]domain.RoleAssignment
	audit     *memAuditRepo
	seq       int
	listErr   error
	assignErr error
	assignFn  func(p ports.AssignRoleParams)
	assigns   int
}

func newMemRoleRepo(audit *memAuditRepo) *memRoleRepo {
	return &memRoleRepo{rows: make(map[string]map[domain.Role]domain.RoleAssignment), audit: audit}
}

func (r *memRoleRepo) Assign(_ context.Context, p ports.AssignRoleParams) (domain.AssignResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigns++
	if r.assignErr != nil {
		return domain.AssignResult{}, r.assignErr
	}
	if r.assignFn != nil {
		r.assignFn(p)
	}

	user := r.rows[p.UserID]
	if user == nil {
		user = make(map[domain.Role]domain.RoleAssignment)
		r.rows[p.UserID] = user
	}

	if existing, ok := user[p.Role]; ok {
		if !p.IsPrimary || existing.IsPrimary {
			return domain.AssignResult{Assignment: existing, Outcome: domain.AssignAlreadyExists}, nil
		}
		r.clearPrimary(user)
		existing.IsPrimary = true
		user[p.Role] = existing
		r.audit.append(domain.RoleAssignedEvent(existing, domain.AssignPromoted, p.Reason, p.Source, p.Meta))
		return domain.AssignResult{Assignment: existing, Outcome: domain.AssignPromoted}, nil
	}

	if p.IsPrimary {
		r.clearPrimary(user)
	}
	r.seq++
	a := domain.RoleAssignment{
		ID:         fmt.Sprintf("ra-%d", r.seq),
		UserID:     p.UserID,
		Role:       p.Role,
		AssignedAt: time.Unix(int64(r.seq), 0).UTC(),
		AssignedBy: p.AssignedBy,
		IsPrimary:  p.IsPrimary,
	}
	user[p.Role] = a
	r.audit.append(domain.RoleAssignedEvent(a, domain.AssignCreated, p.Reason, p.Source, p.Meta))
	return domain.AssignResult{Assignment: a, Outcome: domain.AssignCreated}, nil
}

func (r *memRoleRepo) clearPrimary(user map[domain.Role]domain.RoleAssignment) {
	for role, a := range user {
		a.IsPrimary = false
		user[role] = a
	}
}

func (r *memRoleRepo) Revoke(_ context.Context, p ports.RevokeRoleParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.UserID][p.Role]; !ok {
		return false, nil
	}
	delete(r.rows[p.UserID], p.Role)
	r.audit.append(domain.RoleRevokedEvent(p.UserID, p.Role, p.RevokedBy, p.Reason, p.Meta))
	return true, nil
}

func (r *memRoleRepo) ListRoles(_ context.Context, userID string) ([]domain.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.RoleAssignment, 0, len(r.rows[userID]))
	for _, a := range r.rows[userID] {
		out = append(out, a)
	}
	domain.SortAssignments(out)
	return out, nil
}

func (r *memRoleRepo) primaryCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.rows[userID] {
		if a.IsPrimary {
			n++
		}
	}
	return n
}

type memProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]*domain.Profile
	ensures   int
	ensureErr error
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*domain.Profile)}
}

func (r *memProfileRepo) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *memProfileRepo) EnsureProfile(_ context.Context, userID, fullName string) (*domain.Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensures++
	if r.ensureErr != nil {
		return nil, false, r.ensureErr
	}
	if p, ok := r.profiles[userID]; ok {
		clone := *p
		return &clone, false, nil
	}
	now := time.Now().UTC()
	p := &domain.Profile{ID: "p-" + userID, UserID: userID, FullName: fullName, CreatedAt: now, UpdatedAt: now}
	r.profiles[userID] = p
	clone := *p
	return &clone, true, nil
}

func (r *memProfileRepo) UpdateProfile(_ context.Context, userID string, upd domain.ProfileUpdate) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	upd.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	clone := *p
	return &clone, nil
}

type memAuditRepo struct {
	mu        sync.Mutex
	events    []domain.AuditEvent
	recordErr error
}

func (r *memAuditRepo) append(ev *domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ev)
}

func (r *memAuditRepo) appendLocked(ev *domain.AuditEvent) {
	ev.ID = fmt.Sprintf("ev-%d", len(r.events)+1)
	ev.CreatedAt = time.Unix(int64(len(r.events)+1), 0).UTC()
	r.events = append(r.events, *ev)
}

func (r *memAuditRepo) Record(_ context.Context, ev *domain.AuditEvent) (*domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return nil, r.recordErr
	}
	r.appendLocked(ev)
	return ev, nil
}

func (r *memAuditRepo) Query(_ context.Context, f domain.AuditFilter) (domain.AuditPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.AuditEvent
	for _, ev := range r.events {
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		if f.UserID != "" && (ev.UserID == nil || *ev.UserID != f.UserID) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	start := min(f.Offset, len(matched))
	end := min(start+f.Limit, len(matched))
	return domain.AuditPage{Events: matched[start:end], Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (r *memAuditRepo) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

type memCache struct {
	mu            sync.Mutex
	entries       map[string]domain.CacheEntry
	populates     int
	invalidations []string
	down          bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.CacheEntry)}
}

func (c *memCache) Resolve(_ context.Context, userID string) (*domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, false
	}
	e, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (c *memCache) Populate(_ context.Context, userID string, entry *domain.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.populates++
	if c.down {
		return
	}
	c.entries[userID] = *entry
}

func (c *memCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations = append(c.invalidations, userID)
	if c.down {
		return errors.New("cache down")
	}
	delete(c.entries, userID)
	return nil
}

type stubVerifier struct {
	claims map[string]*domain.Claims
}

func (v *stubVerifier) Verify(_ context.Context, token string) (*domain.Claims, error) {
	c, ok := v.claims[token]
	if !ok {
		return nil, domain.NewAuthError(domain.AuthInvalidSignature, errors.New("bad token"))
	}
	return c, nil
}

type memGuard struct {
	mu        sync.Mutex
	seen      map[string]bool
	err       error
	forgotten []string
}

func newMemGuard() *memGuard {
	return &memGuard{seen: make(map[string]bool)}
}

func (g *memGuard) FirstSeen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *memGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	g.forgotten = append(g.forgotten, key)
	return nil
}
