package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

// ----- Stubs -----

type stubResolver struct {
	identities map[string]*domain.Identity
	err        error
	seen       []string
}

func (s *stubResolver) Resolve(_ context.Context, token string) (*domain.Identity, error) {
	s.seen = append(s.seen, token)
	if token == "" {
		return nil, domain.NewAuthError(domain.AuthNoToken, nil)
	}
	if s.err != nil {
		return nil, s.err
	}
	id, ok := s.identities[token]
	if !ok {
		return nil, domain.NewAuthError(domain.AuthInvalidSignature, nil)
	}
	return id, nil
}

func (s *stubResolver) Me(context.Context, *domain.Identity) (*ports.MeView, error) {
	return nil, nil
}

type stubSink struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
}

func (s *stubSink) Enqueue(e *domain.AuditEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return true
}

func newResolver() *stubResolver {
	return &stubResolver{identities: map[string]*domain.Identity{
		"good": {UserID: "u1", Roles: []domain.Role{domain.RoleCustomer}},
	}}
}

// ----- Tests -----

func runAuth(t *testing.T, r *stubResolver, sink *stubSink, req *http.Request) (*domain.Identity, error) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())

	var got *domain.Identity
	h := Authenticate(r, sink, "access_token")(func(c echo.Context) error {
		got = IdentityFrom(c)
		return c.NoContent(http.StatusOK)
	})
	return got, h(c)
}

func TestAuthenticate_HeaderToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")

	id, err := runAuth(t, newResolver(), &stubSink{}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || id.UserID != "u1" {
		t.Fatalf("identity not stored on context: %+v", id)
	}
}

func TestAuthenticate_CookieFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "good"})

	id, err := runAuth(t, newResolver(), &stubSink{}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || id.UserID != "u1" {
		t.Fatalf("expected identity from cookie, got %+v", id)
	}
}

func TestAuthenticate_HeaderWinsOverCookie(t *testing.T) {
	r := newResolver()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "stale"})

	if _, err := runAuth(t, r, &stubSink{}, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.seen) != 1 || r.seen[0] != "good" {
		t.Fatalf("expected header token to be used, saw %v", r.seen)
	}
}

func TestAuthenticate_NonBearerHeaderFallsBackToCookie(t *testing.T) {
	r := newResolver()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "good"})

	if _, err := runAuth(t, r, &stubSink{}, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.seen[0] != "good" {
		t.Fatalf("expected cookie token, saw %v", r.seen)
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	sink := &stubSink{}
	_, err := runAuth(t, newResolver(), sink, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	if kind, ok := domain.AuthErrorKindOf(err); !ok || kind != domain.AuthNoToken {
		t.Fatalf("expected no_token auth error, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("a missing token is not a security event")
	}
}

func TestAuthenticate_RejectedTokenIsReported(t *testing.T) {
	sink := &stubSink{}
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	req.Header.Set("User-Agent", "curl/8")

	_, err := runAuth(t, newResolver(), sink, req)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 security event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.EventType != domain.EventTokenRejected || ev.Metadata["reason"] != string(domain.AuthInvalidSignature) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.UserAgent == nil || *ev.UserAgent != "curl/8" {
		t.Fatalf("expected user agent on event")
	}
}

func TestAuthenticate_StoreFailurePropagates(t *testing.T) {
	r := newResolver()
	r.err = domain.ErrUpstreamUnavailable
	sink := &stubSink{}
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")

	_, err := runAuth(t, r, sink, req)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("store failures are not token rejections")
	}
}
