package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access forbidden")
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrProfileNotFound = fmt.Errorf("profile %w", ErrNotFound)
	ErrNoRoles         = fmt.Errorf("roles %w", ErrNotFound)

	// ErrUpstreamUnavailable covers the key endpoint and the backing store.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrKeyUnavailable      = fmt.Errorf("signing key: %w", ErrUpstreamUnavailable)

	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// AuthErrorKind classifies why a bearer token was rejected.
type AuthErrorKind string

const (
	AuthNoToken          AuthErrorKind = "no_token"
	AuthInvalidSignature AuthErrorKind = "invalid_signature"
	AuthExpired          AuthErrorKind = "expired"
	AuthMalformedClaims  AuthErrorKind = "malformed_claims"
	AuthKeyUnavailable   AuthErrorKind = "key_unavailable"
	// AuthInvalidToken covers unparseable tokens, wrong audience and unexpected algorithms.
	AuthInvalidToken AuthErrorKind = "invalid_token"
)

// AuthError is returned for every token rejection. It matches ErrUnauthorized
// under errors.Is whatever its kind.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func NewAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "unauthorized: " + string(e.Kind)
	}
	return fmt.Sprintf("unauthorized: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

// AuthErrorKindOf returns the kind carried by err, if any.
func AuthErrorKindOf(err error) (AuthErrorKind, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
